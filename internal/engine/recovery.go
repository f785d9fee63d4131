package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmynk/payouts/internal/calculator"
	"github.com/mmynk/payouts/internal/models"
)

// Recover sweeps the unclaimed remainder of a finalized distribution to
// receiver. It runs at most once per distribution; the second call fails
// with ErrAlreadyRecovered. A zero remainder still marks the distribution
// recovered.
//
// A distribution is finalized once it is Completed, Cancelled, or Active past
// its expiry. Pending distributions never finalize.
func (e *Engine) Recover(ctx context.Context, id int64, receiver string) (*models.Distribution, error) {
	receiver = strings.TrimSpace(receiver)
	if err := validID("recovery receiver", receiver); err != nil {
		return nil, err
	}

	d, err := e.store.UpdateDistribution(ctx, id, func(d *models.Distribution) error {
		if d.Recovered {
			return fmt.Errorf("%w: %d swept %d to %s", ErrAlreadyRecovered, d.ID, d.RecoveredAmount, d.RecoveredTo)
		}
		now := e.now().Unix()
		if !finalized(d, now) {
			return fmt.Errorf("%w: %d is %s", ErrNotFinalized, d.ID, d.Status)
		}

		swept := d.Remaining()
		if swept > 0 {
			ref := fmt.Sprintf("recover:%d", d.ID)
			if err := e.payments.Transfer(ctx, ref, d.FundingAsset, escrowAccount(d.ID), receiver, swept); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrTransferFailed, ref, err)
			}
		}

		d.Recovered = true
		d.RecoveredAmount = swept
		d.RecoveredTo = receiver
		d.RecoveredAt = now
		return nil
	})
	if err != nil {
		return nil, e.fail("Recover", id, err)
	}

	e.metrics.Recovery(d.FundingAsset, d.RecoveredAmount)
	e.logger.Info("Distribution recovered",
		"distribution_id", d.ID, "swept", d.RecoveredAmount, "receiver", d.RecoveredTo,
		"total_claimed", d.TotalClaimed)
	return d, nil
}

func finalized(d *models.Distribution, now int64) bool {
	if d.Closed() {
		return true
	}
	return d.Status == models.StatusActive && d.Expired(now)
}

// Reconcile audits a distribution's counters against its claim records.
func (e *Engine) Reconcile(ctx context.Context, id int64) (calculator.Reconciliation, error) {
	d, err := e.GetDistribution(ctx, id)
	if err != nil {
		return calculator.Reconciliation{}, err
	}
	claims, err := e.store.ListClaims(ctx, id)
	if err != nil {
		return calculator.Reconciliation{}, err
	}

	items := make([]calculator.ClaimForReconcile, len(claims))
	for i, c := range claims {
		items[i] = calculator.ClaimForReconcile{BeneficiaryID: c.BeneficiaryID, Amount: c.Amount}
	}

	rec, err := calculator.Reconcile(calculator.PoolForReconcile{
		Net:          d.NetAmount,
		TotalClaimed: d.TotalClaimed,
		Recovered:    d.Recovered,
		Swept:        d.RecoveredAmount,
	}, items)
	if err != nil {
		e.logger.Error("Reconcile found an inconsistency", "distribution_id", id, "error", err)
		return calculator.Reconciliation{}, err
	}
	return rec, nil
}
