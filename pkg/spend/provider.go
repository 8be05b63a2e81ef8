// Package spend fetches the account's month-to-date cost. Any error
// returned by a Provider is fatal for an evaluation cycle: no tier can be
// decided without the spend.
package spend

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
)

var (
	// ErrNoCredentials means no usable AWS credentials were found.
	ErrNoCredentials = errors.New("aws credentials not configured")

	// ErrAccessDenied means the credentials lack ce:GetCostAndUsage.
	ErrAccessDenied = errors.New("insufficient permissions for Cost Explorer (ce:GetCostAndUsage)")
)

// Provider returns the current month-to-date spend.
type Provider interface {
	MonthToDate(ctx context.Context) (*model.Spend, error)
}

// classify wraps AWS API errors with the matching sentinel so callers can
// branch with errors.Is.
func classify(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "AccessDenied", "UnauthorizedOperation":
			return fmt.Errorf("%s: %w: %w", op, ErrAccessDenied, err)
		case "UnrecognizedClientException", "InvalidClientTokenId", "ExpiredToken", "ExpiredTokenException":
			return fmt.Errorf("%s: %w: %w", op, ErrNoCredentials, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
