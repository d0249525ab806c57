package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text     string
		wantType CommandType
		wantArgs []string
	}{
		{text: "/bill", wantType: CommandBill},
		{text: "  /BILL 2024-03 ", wantType: CommandBill, wantArgs: []string{"2024-03"}},
		{text: "balance", wantType: CommandDue},
		{text: "/start", wantType: CommandHelp},
		{text: "milk please", wantType: CommandUnknown, wantArgs: []string{"please"}},
		{text: "   ", wantType: CommandUnknown},
	}

	for _, tt := range tests {
		cmd := ParseCommand(tt.text)
		assert.Equal(t, tt.wantType, cmd.Type, tt.text)
		assert.Equal(t, tt.wantArgs, cmd.Args, tt.text)
		assert.Equal(t, tt.text, cmd.Raw)
	}
}

func TestInboundMessageBody(t *testing.T) {
	text := InboundMessage{Text: &TextContent{Body: "/due"}}
	assert.Equal(t, "/due", text.Body())

	button := InboundMessage{Interactive: &InteractiveContent{ButtonReply: &ReplyOption{ID: "/bill"}}}
	assert.Equal(t, "/bill", button.Body())

	list := InboundMessage{Interactive: &InteractiveContent{ListReply: &ReplyOption{ID: "/help"}}}
	assert.Equal(t, "/help", list.Body())

	assert.Equal(t, "", InboundMessage{}.Body())
}
