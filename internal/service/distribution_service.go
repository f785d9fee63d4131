package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/mmynk/payouts/internal/auth"
	"github.com/mmynk/payouts/internal/engine"
	"github.com/mmynk/payouts/internal/middleware"
	"github.com/mmynk/payouts/internal/models"
)

// DistributionService exposes the engine over Connect.
// Every call is authorized against the caller's principal before it reaches the engine.
type DistributionService struct {
	engine *engine.Engine
	policy auth.Policy
}

// NewDistributionService creates a DistributionService over the given engine.
func NewDistributionService(eng *engine.Engine, policy auth.Policy) *DistributionService {
	return &DistributionService{engine: eng, policy: policy}
}

// authorize checks the principal from ctx and returns it.
func (s *DistributionService) authorize(ctx context.Context, action auth.Action, beneficiaryID string) (auth.Principal, error) {
	p := middleware.GetPrincipal(ctx)
	if p.Subject == "" {
		return p, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	if err := s.policy.Authorize(p, action, beneficiaryID); err != nil {
		return p, connect.NewError(connect.CodePermissionDenied, err)
	}
	return p, nil
}

// CreateDistribution creates a Pending distribution with fees locked in.
func (s *DistributionService) CreateDistribution(ctx context.Context, req *connect.Request[CreateDistributionRequest]) (*connect.Response[DistributionResponse], error) {
	p, err := s.authorize(ctx, auth.ActionManage, "")
	if err != nil {
		return nil, err
	}

	d, err := s.engine.CreateDistribution(ctx, engine.CreateRequest{
		AssetID:      req.Msg.AssetID,
		FundingAsset: req.Msg.FundingAsset,
		Kind:         models.Kind(req.Msg.Kind),
		GrossAmount:  req.Msg.GrossAmount,
		SnapshotID:   req.Msg.SnapshotID,
		MerkleRoot:   req.Msg.MerkleRoot,
		ExpiresAt:    req.Msg.ExpiresAt,
		Description:  req.Msg.Description,
		CreatedBy:    p.Subject,
	})
	if err != nil {
		return nil, toConnectError("CreateDistribution", err)
	}

	return connect.NewResponse(&DistributionResponse{Distribution: toDistribution(d)}), nil
}

// ActivateDistribution opens a distribution for claims and pays its fees.
func (s *DistributionService) ActivateDistribution(ctx context.Context, req *connect.Request[DistributionRequest]) (*connect.Response[DistributionResponse], error) {
	return s.transition(ctx, "ActivateDistribution", req.Msg.DistributionID, s.engine.Activate)
}

// CompleteDistribution closes an active distribution.
func (s *DistributionService) CompleteDistribution(ctx context.Context, req *connect.Request[DistributionRequest]) (*connect.Response[DistributionResponse], error) {
	return s.transition(ctx, "CompleteDistribution", req.Msg.DistributionID, s.engine.Complete)
}

// CancelDistribution cancels a distribution nobody has claimed from.
func (s *DistributionService) CancelDistribution(ctx context.Context, req *connect.Request[DistributionRequest]) (*connect.Response[DistributionResponse], error) {
	return s.transition(ctx, "CancelDistribution", req.Msg.DistributionID, s.engine.Cancel)
}

func (s *DistributionService) transition(
	ctx context.Context,
	op string,
	id int64,
	apply func(context.Context, int64) (*models.Distribution, error),
) (*connect.Response[DistributionResponse], error) {
	if _, err := s.authorize(ctx, auth.ActionManage, ""); err != nil {
		return nil, err
	}

	d, err := apply(ctx, id)
	if err != nil {
		return nil, toConnectError(op, err)
	}

	return connect.NewResponse(&DistributionResponse{Distribution: toDistribution(d)}), nil
}

// GetDistribution retrieves a distribution by ID.
func (s *DistributionService) GetDistribution(ctx context.Context, req *connect.Request[DistributionRequest]) (*connect.Response[DistributionResponse], error) {
	if _, err := s.authorize(ctx, auth.ActionRead, ""); err != nil {
		return nil, err
	}

	d, err := s.engine.GetDistribution(ctx, req.Msg.DistributionID)
	if err != nil {
		return nil, toConnectError("GetDistribution", err)
	}

	return connect.NewResponse(&DistributionResponse{Distribution: toDistribution(d)}), nil
}

// ListDistributions lists distributions, optionally for a single asset.
func (s *DistributionService) ListDistributions(ctx context.Context, req *connect.Request[ListDistributionsRequest]) (*connect.Response[ListDistributionsResponse], error) {
	if _, err := s.authorize(ctx, auth.ActionRead, ""); err != nil {
		return nil, err
	}

	list, err := s.engine.ListDistributions(ctx, req.Msg.AssetID)
	if err != nil {
		return nil, toConnectError("ListDistributions", err)
	}

	out := make([]*Distribution, len(list))
	for i, d := range list {
		out[i] = toDistribution(d)
	}
	return connect.NewResponse(&ListDistributionsResponse{Distributions: out}), nil
}

// Claim pays a beneficiary its entitlement.
func (s *DistributionService) Claim(ctx context.Context, req *connect.Request[ClaimRequest]) (*connect.Response[ClaimResponse], error) {
	if _, err := s.authorize(ctx, auth.ActionClaim, req.Msg.BeneficiaryID); err != nil {
		return nil, err
	}

	c, err := s.engine.Claim(ctx, engine.ClaimRequest{
		DistributionID: req.Msg.DistributionID,
		BeneficiaryID:  req.Msg.BeneficiaryID,
		Amount:         req.Msg.Amount,
		Proof:          req.Msg.Proof,
	})
	if err != nil {
		return nil, toConnectError("Claim", err)
	}

	return connect.NewResponse(&ClaimResponse{Claim: toClaim(c)}), nil
}

// GetClaim retrieves a beneficiary's claim. Beneficiaries may only look up their own.
func (s *DistributionService) GetClaim(ctx context.Context, req *connect.Request[GetClaimRequest]) (*connect.Response[ClaimResponse], error) {
	if _, err := s.authorize(ctx, auth.ActionClaim, req.Msg.BeneficiaryID); err != nil {
		return nil, err
	}

	c, err := s.engine.GetClaim(ctx, req.Msg.DistributionID, req.Msg.BeneficiaryID)
	if err != nil {
		return nil, toConnectError("GetClaim", err)
	}

	return connect.NewResponse(&ClaimResponse{Claim: toClaim(c)}), nil
}

// ListClaims lists every claim of a distribution.
func (s *DistributionService) ListClaims(ctx context.Context, req *connect.Request[DistributionRequest]) (*connect.Response[ListClaimsResponse], error) {
	if _, err := s.authorize(ctx, auth.ActionAudit, ""); err != nil {
		return nil, err
	}

	claims, err := s.engine.ListClaims(ctx, req.Msg.DistributionID)
	if err != nil {
		return nil, toConnectError("ListClaims", err)
	}

	out := make([]*Claim, len(claims))
	for i, c := range claims {
		out[i] = toClaim(c)
	}
	return connect.NewResponse(&ListClaimsResponse{Claims: out}), nil
}

// Recover sweeps the unclaimed remainder of a finalized distribution.
func (s *DistributionService) Recover(ctx context.Context, req *connect.Request[RecoverRequest]) (*connect.Response[RecoverResponse], error) {
	if _, err := s.authorize(ctx, auth.ActionRecover, ""); err != nil {
		return nil, err
	}

	d, err := s.engine.Recover(ctx, req.Msg.DistributionID, req.Msg.Receiver)
	if err != nil {
		return nil, toConnectError("Recover", err)
	}

	return connect.NewResponse(&RecoverResponse{
		SweptAmount:  d.RecoveredAmount,
		Distribution: toDistribution(d),
	}), nil
}

// GetEntitlement reports a holder's pro-rata share.
func (s *DistributionService) GetEntitlement(ctx context.Context, req *connect.Request[EntitlementRequest]) (*connect.Response[EntitlementResponse], error) {
	if _, err := s.authorize(ctx, auth.ActionRead, ""); err != nil {
		return nil, err
	}

	amount, err := s.engine.Entitlement(ctx, req.Msg.DistributionID, req.Msg.BeneficiaryID)
	if err != nil {
		return nil, toConnectError("GetEntitlement", err)
	}

	return connect.NewResponse(&EntitlementResponse{Amount: amount}), nil
}

// QuoteFees previews fee extraction under the current policy.
func (s *DistributionService) QuoteFees(ctx context.Context, req *connect.Request[QuoteFeesRequest]) (*connect.Response[QuoteFeesResponse], error) {
	if _, err := s.authorize(ctx, auth.ActionRead, ""); err != nil {
		return nil, err
	}

	q, err := s.engine.QuoteFees(req.Msg.GrossAmount)
	if err != nil {
		return nil, toConnectError("QuoteFees", err)
	}

	return connect.NewResponse(toQuote(q)), nil
}

// Reconcile audits a distribution against its claim records.
func (s *DistributionService) Reconcile(ctx context.Context, req *connect.Request[DistributionRequest]) (*connect.Response[ReconcileResponse], error) {
	if _, err := s.authorize(ctx, auth.ActionAudit, ""); err != nil {
		return nil, err
	}

	r, err := s.engine.Reconcile(ctx, req.Msg.DistributionID)
	if err != nil {
		return nil, toConnectError("Reconcile", err)
	}

	return connect.NewResponse(toReconcile(r)), nil
}

// toConnectError maps engine errors to Connect status codes.
func toConnectError(op string, err error) error {
	switch {
	case errors.Is(err, engine.ErrAlreadyClaimed), errors.Is(err, engine.ErrAlreadyRecovered):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, engine.ErrAmountExceedsEntitlement):
		return connect.NewError(connect.CodeOutOfRange, err)
	}

	switch engine.ClassOf(err) {
	case engine.ClassValidation:
		return connect.NewError(connect.CodeInvalidArgument, err)
	case engine.ClassNotFound:
		return connect.NewError(connect.CodeNotFound, err)
	case engine.ClassConflict, engine.ClassArithmetic:
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case engine.ClassDependency:
		return connect.NewError(connect.CodeUnavailable, err)
	}

	if errors.Is(err, context.Canceled) {
		return connect.NewError(connect.CodeCanceled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}

	slog.Error(op+" failed", "error", err)
	return connect.NewError(connect.CodeInternal, errors.New("internal error"))
}
