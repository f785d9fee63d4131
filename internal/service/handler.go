package service

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// DistributionServiceName is the fully-qualified name of the service.
const DistributionServiceName = "payouts.v1.DistributionService"

// Procedure paths, in the same shape generated Connect code uses.
const (
	CreateDistributionProcedure   = "/payouts.v1.DistributionService/CreateDistribution"
	ActivateDistributionProcedure = "/payouts.v1.DistributionService/ActivateDistribution"
	CompleteDistributionProcedure = "/payouts.v1.DistributionService/CompleteDistribution"
	CancelDistributionProcedure   = "/payouts.v1.DistributionService/CancelDistribution"
	GetDistributionProcedure      = "/payouts.v1.DistributionService/GetDistribution"
	ListDistributionsProcedure    = "/payouts.v1.DistributionService/ListDistributions"
	ClaimProcedure                = "/payouts.v1.DistributionService/Claim"
	GetClaimProcedure             = "/payouts.v1.DistributionService/GetClaim"
	ListClaimsProcedure           = "/payouts.v1.DistributionService/ListClaims"
	RecoverProcedure              = "/payouts.v1.DistributionService/Recover"
	GetEntitlementProcedure       = "/payouts.v1.DistributionService/GetEntitlement"
	QuoteFeesProcedure            = "/payouts.v1.DistributionService/QuoteFees"
	ReconcileProcedure            = "/payouts.v1.DistributionService/Reconcile"
)

// NewDistributionServiceHandler builds an HTTP handler serving every
// procedure of svc. It returns the path prefix to mount it on.
func NewDistributionServiceHandler(svc *DistributionService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	handlers := map[string]http.Handler{
		CreateDistributionProcedure:   connect.NewUnaryHandler(CreateDistributionProcedure, svc.CreateDistribution, opts...),
		ActivateDistributionProcedure: connect.NewUnaryHandler(ActivateDistributionProcedure, svc.ActivateDistribution, opts...),
		CompleteDistributionProcedure: connect.NewUnaryHandler(CompleteDistributionProcedure, svc.CompleteDistribution, opts...),
		CancelDistributionProcedure:   connect.NewUnaryHandler(CancelDistributionProcedure, svc.CancelDistribution, opts...),
		GetDistributionProcedure:      connect.NewUnaryHandler(GetDistributionProcedure, svc.GetDistribution, opts...),
		ListDistributionsProcedure:    connect.NewUnaryHandler(ListDistributionsProcedure, svc.ListDistributions, opts...),
		ClaimProcedure:                connect.NewUnaryHandler(ClaimProcedure, svc.Claim, opts...),
		GetClaimProcedure:             connect.NewUnaryHandler(GetClaimProcedure, svc.GetClaim, opts...),
		ListClaimsProcedure:           connect.NewUnaryHandler(ListClaimsProcedure, svc.ListClaims, opts...),
		RecoverProcedure:              connect.NewUnaryHandler(RecoverProcedure, svc.Recover, opts...),
		GetEntitlementProcedure:       connect.NewUnaryHandler(GetEntitlementProcedure, svc.GetEntitlement, opts...),
		QuoteFeesProcedure:            connect.NewUnaryHandler(QuoteFeesProcedure, svc.QuoteFees, opts...),
		ReconcileProcedure:            connect.NewUnaryHandler(ReconcileProcedure, svc.Reconcile, opts...),
	}

	prefix := "/" + DistributionServiceName + "/"
	return prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// DistributionServiceClient calls a DistributionService over Connect.
type DistributionServiceClient struct {
	createDistribution   *connect.Client[CreateDistributionRequest, DistributionResponse]
	activateDistribution *connect.Client[DistributionRequest, DistributionResponse]
	completeDistribution *connect.Client[DistributionRequest, DistributionResponse]
	cancelDistribution   *connect.Client[DistributionRequest, DistributionResponse]
	getDistribution      *connect.Client[DistributionRequest, DistributionResponse]
	listDistributions    *connect.Client[ListDistributionsRequest, ListDistributionsResponse]
	claim                *connect.Client[ClaimRequest, ClaimResponse]
	getClaim             *connect.Client[GetClaimRequest, ClaimResponse]
	listClaims           *connect.Client[DistributionRequest, ListClaimsResponse]
	recover              *connect.Client[RecoverRequest, RecoverResponse]
	getEntitlement       *connect.Client[EntitlementRequest, EntitlementResponse]
	quoteFees            *connect.Client[QuoteFeesRequest, QuoteFeesResponse]
	reconcile            *connect.Client[DistributionRequest, ReconcileResponse]
}

// NewDistributionServiceClient constructs a client for the service at baseURL.
func NewDistributionServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *DistributionServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)

	return &DistributionServiceClient{
		createDistribution: connect.NewClient[CreateDistributionRequest, DistributionResponse](
			httpClient, baseURL+CreateDistributionProcedure, opts...),
		activateDistribution: connect.NewClient[DistributionRequest, DistributionResponse](
			httpClient, baseURL+ActivateDistributionProcedure, opts...),
		completeDistribution: connect.NewClient[DistributionRequest, DistributionResponse](
			httpClient, baseURL+CompleteDistributionProcedure, opts...),
		cancelDistribution: connect.NewClient[DistributionRequest, DistributionResponse](
			httpClient, baseURL+CancelDistributionProcedure, opts...),
		getDistribution: connect.NewClient[DistributionRequest, DistributionResponse](
			httpClient, baseURL+GetDistributionProcedure, opts...),
		listDistributions: connect.NewClient[ListDistributionsRequest, ListDistributionsResponse](
			httpClient, baseURL+ListDistributionsProcedure, opts...),
		claim: connect.NewClient[ClaimRequest, ClaimResponse](
			httpClient, baseURL+ClaimProcedure, opts...),
		getClaim: connect.NewClient[GetClaimRequest, ClaimResponse](
			httpClient, baseURL+GetClaimProcedure, opts...),
		listClaims: connect.NewClient[DistributionRequest, ListClaimsResponse](
			httpClient, baseURL+ListClaimsProcedure, opts...),
		recover: connect.NewClient[RecoverRequest, RecoverResponse](
			httpClient, baseURL+RecoverProcedure, opts...),
		getEntitlement: connect.NewClient[EntitlementRequest, EntitlementResponse](
			httpClient, baseURL+GetEntitlementProcedure, opts...),
		quoteFees: connect.NewClient[QuoteFeesRequest, QuoteFeesResponse](
			httpClient, baseURL+QuoteFeesProcedure, opts...),
		reconcile: connect.NewClient[DistributionRequest, ReconcileResponse](
			httpClient, baseURL+ReconcileProcedure, opts...),
	}
}

func (c *DistributionServiceClient) CreateDistribution(ctx context.Context, req *connect.Request[CreateDistributionRequest]) (*connect.Response[DistributionResponse], error) {
	return c.createDistribution.CallUnary(ctx, req)
}

func (c *DistributionServiceClient) ActivateDistribution(ctx context.Context, req *connect.Request[DistributionRequest]) (*connect.Response[DistributionResponse], error) {
	return c.activateDistribution.CallUnary(ctx, req)
}

func (c *DistributionServiceClient) CompleteDistribution(ctx context.Context, req *connect.Request[DistributionRequest]) (*connect.Response[DistributionResponse], error) {
	return c.completeDistribution.CallUnary(ctx, req)
}

func (c *DistributionServiceClient) CancelDistribution(ctx context.Context, req *connect.Request[DistributionRequest]) (*connect.Response[DistributionResponse], error) {
	return c.cancelDistribution.CallUnary(ctx, req)
}

func (c *DistributionServiceClient) GetDistribution(ctx context.Context, req *connect.Request[DistributionRequest]) (*connect.Response[DistributionResponse], error) {
	return c.getDistribution.CallUnary(ctx, req)
}

func (c *DistributionServiceClient) ListDistributions(ctx context.Context, req *connect.Request[ListDistributionsRequest]) (*connect.Response[ListDistributionsResponse], error) {
	return c.listDistributions.CallUnary(ctx, req)
}

func (c *DistributionServiceClient) Claim(ctx context.Context, req *connect.Request[ClaimRequest]) (*connect.Response[ClaimResponse], error) {
	return c.claim.CallUnary(ctx, req)
}

func (c *DistributionServiceClient) GetClaim(ctx context.Context, req *connect.Request[GetClaimRequest]) (*connect.Response[ClaimResponse], error) {
	return c.getClaim.CallUnary(ctx, req)
}

func (c *DistributionServiceClient) ListClaims(ctx context.Context, req *connect.Request[DistributionRequest]) (*connect.Response[ListClaimsResponse], error) {
	return c.listClaims.CallUnary(ctx, req)
}

func (c *DistributionServiceClient) Recover(ctx context.Context, req *connect.Request[RecoverRequest]) (*connect.Response[RecoverResponse], error) {
	return c.recover.CallUnary(ctx, req)
}

func (c *DistributionServiceClient) GetEntitlement(ctx context.Context, req *connect.Request[EntitlementRequest]) (*connect.Response[EntitlementResponse], error) {
	return c.getEntitlement.CallUnary(ctx, req)
}

func (c *DistributionServiceClient) QuoteFees(ctx context.Context, req *connect.Request[QuoteFeesRequest]) (*connect.Response[QuoteFeesResponse], error) {
	return c.quoteFees.CallUnary(ctx, req)
}

func (c *DistributionServiceClient) Reconcile(ctx context.Context, req *connect.Request[DistributionRequest]) (*connect.Response[ReconcileResponse], error) {
	return c.reconcile.CallUnary(ctx, req)
}
