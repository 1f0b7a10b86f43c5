package qcflag

import (
	"context"
	"log/slog"
	"strings"

	"qcflags/internal/bootstrap/logging"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

type VerifyFlagInput struct {
	FlagID  int64
	UserID  int64
	Comment string
}

// VerifyFlag appends a verification. Authors cannot verify their own flags.
func (s *Service) VerifyFlag(ctx context.Context, input VerifyFlagInput) (verification ports.Verification, err error) {
	if err := checkContext(ctx); err != nil {
		return ports.Verification{}, err
	}

	ctx = logging.WithAttrs(withComponent(ctx, "verify_flag"), slog.Int64("flag_id", input.FlagID))
	started := s.now()
	defer func() { s.observe(ctx, "verify_flag", started, err) }()

	if input.FlagID <= 0 {
		return ports.Verification{}, errs.Validation("flagId", "must be positive")
	}
	if input.UserID <= 0 {
		return ports.Verification{}, errs.Validation("userId", "must be positive")
	}

	current, err := s.flags.GetFlag(ctx, input.FlagID)
	if err != nil {
		return ports.Verification{}, notFound(err, "flag", input.FlagID)
	}
	scope := current.Scope
	ctx = logging.WithAttrs(ctx, slog.String("scope", scope.String()))

	// Verifying and discarding the same flag serialize on its scope lock, so a
	// flag is never both verified and discarded.
	var trail *auditTrail
	err = s.withRetry(ctx, "verify_flag", func() error {
		trail = &auditTrail{}
		return s.lockedTx(ctx, scopeLocks(scope), func(txCtx context.Context) error {
			flag, err := s.flags.GetFlag(txCtx, input.FlagID)
			if err != nil {
				return notFound(err, "flag", input.FlagID)
			}
			if flag.Deleted {
				return errs.Validationf("flagId", "flag %d is discarded", input.FlagID)
			}
			if flag.CreatedByID == input.UserID {
				return errs.AccessDenied("a flag cannot be verified by its author")
			}

			verification, err = s.flags.CreateVerification(txCtx, ports.Verification{
				FlagID:      flag.ID,
				CreatedByID: input.UserID,
				Comment:     strings.TrimSpace(input.Comment),
				CreatedAt:   s.nowMillis(),
			})
			if err != nil {
				return err
			}

			flagID := flag.ID
			return s.appendAuditTx(txCtx, trail, ports.AuditEvent{
				Kind:      EventFlagVerified,
				RunNumber: scope.RunNumber,
				Scope:     scope.String(),
				FlagID:    &flagID,
				Actor:     input.UserID,
			}, verification)
		})
	})
	if err != nil {
		return ports.Verification{}, err
	}

	s.invalidateRunBestEffort(ctx, scope.RunNumber)
	s.publishBestEffort(ctx, trail)
	logging.Info(ctx, "qc flag verified", slog.Int64("verification_id", verification.ID))
	return verification, nil
}

// ListVerifications returns the verifications of a flag in creation order.
func (s *Service) ListVerifications(ctx context.Context, flagID int64) ([]ports.Verification, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if _, err := s.flags.GetFlag(ctx, flagID); err != nil {
		return nil, notFound(err, "flag", flagID)
	}
	return s.flags.ListVerifications(ctx, flagID)
}
