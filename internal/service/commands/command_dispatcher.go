package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/dairy/internal/billing"
	"github.com/mamadbah2/dairy/internal/domain/models"
	"github.com/mamadbah2/dairy/internal/service/ledger"
)

// ErrInvalidArguments indicates the command payload could not be parsed.
var ErrInvalidArguments = errors.New("invalid command arguments")

const (
	helpText = "Dairy billing commands:\n" +
		"/bill - this month's bill\n" +
		"/bill YYYY-MM - bill for a given month\n" +
		"/due - total due across all months"
	unregisteredText = "This number is not registered for dairy billing. Please contact the dairy."
	billUsageText    = "Usage: /bill or /bill 2024-03"
)

// Ledger is the subset of the ledger service used by customer commands.
type Ledger interface {
	CustomerByPhone(ctx context.Context, phone string) (models.Customer, error)
	Notification(ctx context.Context, customer models.Customer, period billing.Period) (billing.Notification, error)
	Location() *time.Location
}

// Dispatcher turns a parsed command into the reply text for the sender.
type Dispatcher interface {
	HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error)
}

// Service implements the Dispatcher interface.
type Service struct {
	ledger Ledger
	logger *zap.Logger
	now    func() time.Time
}

// NewService constructs a command dispatcher.
func NewService(ledger Ledger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		ledger: ledger,
		logger: logger,
		now:    time.Now,
	}
}

// HandleCommand answers a customer command. Unknown senders and unknown
// commands get an explanatory reply rather than an error.
func (s *Service) HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error) {
	s.logger.Debug("dispatching command", zap.String("command", string(cmd.Type)), zap.String("sender", sender), zap.Strings("args", cmd.Args))

	if cmd.Type != models.CommandBill && cmd.Type != models.CommandDue {
		return helpText, nil
	}

	customer, err := s.ledger.CustomerByPhone(ctx, sender)
	if errors.Is(err, ledger.ErrCustomerNotFound) {
		s.logger.Info("command from unregistered number", zap.String("sender", sender))
		return unregisteredText, nil
	}
	if err != nil {
		return "", err
	}

	period, err := s.periodFor(cmd)
	if err != nil {
		return "", err
	}

	notification, err := s.ledger.Notification(ctx, customer, period)
	if err != nil {
		return "", fmt.Errorf("build %s reply: %w", cmd.Type, err)
	}

	return notification.Message, nil
}

func (s *Service) periodFor(cmd models.Command) (billing.Period, error) {
	if cmd.Type == models.CommandDue {
		return billing.AllTime(), nil
	}

	loc := s.ledger.Location()
	if len(cmd.Args) == 0 {
		return billing.MonthOf(s.now(), loc), nil
	}

	period, err := billing.ParseMonth(cmd.Args[0], loc)
	if err != nil {
		return billing.Period{}, fmt.Errorf("%w: %s", ErrInvalidArguments, billUsageText)
	}
	return period, nil
}

// Usage is the reply sent when a command could not be parsed.
func Usage(err error) string {
	if errors.Is(err, ErrInvalidArguments) {
		return billUsageText
	}
	return helpText
}
