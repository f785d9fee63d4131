package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/mmynk/payouts/internal/auth"
	"github.com/mmynk/payouts/internal/engine"
	"github.com/mmynk/payouts/internal/ledger"
	"github.com/mmynk/payouts/internal/merkle"
	"github.com/mmynk/payouts/internal/metrics"
	"github.com/mmynk/payouts/internal/middleware"
	"github.com/mmynk/payouts/internal/storage/sqlite"
)

type testServer struct {
	url  string
	book *ledger.Book
	jwt  *auth.JWTManager
}

// bearer returns a client interceptor that sends token on every call.
func bearer(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			req.Header().Set("Authorization", "Bearer "+token)
			return next(ctx, req)
		}
	}
}

// setupTestServer serves a DistributionService backed by temp SQLite and pebble stores.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	dir, err := os.MkdirTemp("", "service-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := sqlite.New(filepath.Join(dir, "payouts.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	book, err := ledger.Open(filepath.Join(dir, "ledger"))
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}
	t.Cleanup(func() { book.Close() })

	collector := metrics.NewCollector("payouts_test")
	eng := engine.New(store, book, book.Payer("funding"), engine.NewStaticFeePolicy(100, 50, "treasury"), engine.Options{
		ClaimsAfterCompletion: true,
		Logger:                slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:               collector,
	})

	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	interceptors := connect.WithInterceptors(
		middleware.LoggingInterceptor(collector),
		middleware.RequireAuth(jwtManager),
	)
	path, handler := NewDistributionServiceHandler(NewDistributionService(eng, auth.Policy{}), interceptors)

	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testServer{url: server.URL, book: book, jwt: jwtManager}
}

// client returns a client authenticated as the given principal.
// An empty subject yields an unauthenticated client.
func (s *testServer) client(t *testing.T, subject string, role auth.Role) *DistributionServiceClient {
	t.Helper()
	if subject == "" {
		return NewDistributionServiceClient(http.DefaultClient, s.url)
	}
	token, err := s.jwt.Generate(auth.Principal{Subject: subject, Role: role})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return NewDistributionServiceClient(http.DefaultClient, s.url, connect.WithInterceptors(bearer(token)))
}

func (s *testServer) mint(t *testing.T, asset, holder string, amount uint64) {
	t.Helper()
	if err := s.book.Mint(context.Background(), asset, holder, amount); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
}

func wantCode(t *testing.T, err error, code connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", code)
	}
	if got := connect.CodeOf(err); got != code {
		t.Errorf("code = %v, want %v (%v)", got, code, err)
	}
}

func TestDistributionLifecycle(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()

	srv.mint(t, "property-1", "alice", 25)
	srv.mint(t, "property-1", "bob", 75)
	srv.mint(t, "USDC", "funding", 10000)

	admin := srv.client(t, "ops", auth.RoleAdmin)
	alice := srv.client(t, "alice", auth.RoleBeneficiary)

	created, err := admin.CreateDistribution(ctx, connect.NewRequest(&CreateDistributionRequest{
		AssetID:      "property-1",
		FundingAsset: "USDC",
		Kind:         "rent",
		GrossAmount:  10000,
		Description:  "March rent",
	}))
	if err != nil {
		t.Fatalf("CreateDistribution failed: %v", err)
	}
	d := created.Msg.Distribution
	if d.Status != "pending" || d.PlatformFee != 100 || d.MaintenanceFee != 50 || d.NetAmount != 9850 {
		t.Errorf("created = %+v", d)
	}
	if d.CreatedBy != "ops" || d.SnapshotID == "" {
		t.Errorf("CreatedBy = %q SnapshotID = %q", d.CreatedBy, d.SnapshotID)
	}
	id := d.ID

	if _, err := admin.ActivateDistribution(ctx, connect.NewRequest(&DistributionRequest{DistributionID: id})); err != nil {
		t.Fatalf("ActivateDistribution failed: %v", err)
	}

	ent, err := alice.GetEntitlement(ctx, connect.NewRequest(&EntitlementRequest{DistributionID: id, BeneficiaryID: "alice"}))
	if err != nil {
		t.Fatalf("GetEntitlement failed: %v", err)
	}
	if ent.Msg.Amount != 2462 {
		t.Errorf("entitlement = %d, want 2462", ent.Msg.Amount)
	}

	claimed, err := alice.Claim(ctx, connect.NewRequest(&ClaimRequest{DistributionID: id, BeneficiaryID: "alice", Amount: 2462}))
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed.Msg.Claim.Amount != 2462 {
		t.Errorf("claimed %d, want 2462", claimed.Msg.Claim.Amount)
	}

	t.Run("second claim", func(t *testing.T) {
		_, err := alice.Claim(ctx, connect.NewRequest(&ClaimRequest{DistributionID: id, BeneficiaryID: "alice", Amount: 1}))
		wantCode(t, err, connect.CodeAlreadyExists)
	})

	t.Run("own claim lookup", func(t *testing.T) {
		got, err := alice.GetClaim(ctx, connect.NewRequest(&GetClaimRequest{DistributionID: id, BeneficiaryID: "alice"}))
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}
		if got.Msg.Claim.Amount != 2462 {
			t.Errorf("claim amount = %d", got.Msg.Claim.Amount)
		}
	})

	if _, err := admin.CompleteDistribution(ctx, connect.NewRequest(&DistributionRequest{DistributionID: id})); err != nil {
		t.Fatalf("CompleteDistribution failed: %v", err)
	}

	rec, err := admin.Recover(ctx, connect.NewRequest(&RecoverRequest{DistributionID: id, Receiver: "ops"}))
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if rec.Msg.SweptAmount != 9850-2462 {
		t.Errorf("swept %d, want %d", rec.Msg.SweptAmount, 9850-2462)
	}

	_, err = admin.Recover(ctx, connect.NewRequest(&RecoverRequest{DistributionID: id, Receiver: "ops"}))
	wantCode(t, err, connect.CodeAlreadyExists)

	audit, err := admin.Reconcile(ctx, connect.NewRequest(&DistributionRequest{DistributionID: id}))
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if audit.Msg.TotalClaimed+audit.Msg.Swept != audit.Msg.NetAmount || audit.Msg.Claims != 1 {
		t.Errorf("Reconcile = %+v", audit.Msg)
	}

	list, err := alice.ListDistributions(ctx, connect.NewRequest(&ListDistributionsRequest{AssetID: "property-1"}))
	if err != nil {
		t.Fatalf("ListDistributions failed: %v", err)
	}
	if len(list.Msg.Distributions) != 1 || !list.Msg.Distributions[0].Recovered {
		t.Errorf("ListDistributions = %+v", list.Msg.Distributions)
	}

	claims, err := admin.ListClaims(ctx, connect.NewRequest(&DistributionRequest{DistributionID: id}))
	if err != nil {
		t.Fatalf("ListClaims failed: %v", err)
	}
	if len(claims.Msg.Claims) != 1 || claims.Msg.Claims[0].BeneficiaryID != "alice" {
		t.Errorf("ListClaims = %+v", claims.Msg.Claims)
	}
}

func TestMerkleClaimOverRPC(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()

	tree, err := merkle.Build([]merkle.Entry{
		{BeneficiaryID: "alice", Amount: 600},
		{BeneficiaryID: "bob", Amount: 400},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	// Gross covers the allowlist total after 1.5% fees.
	srv.mint(t, "USDC", "funding", 2000)

	admin := srv.client(t, "ops", auth.RoleAdmin)
	alice := srv.client(t, "alice", auth.RoleBeneficiary)

	created, err := admin.CreateDistribution(ctx, connect.NewRequest(&CreateDistributionRequest{
		AssetID: "bonus-2026", FundingAsset: "USDC", Kind: "bonus", GrossAmount: 2000,
		MerkleRoot: tree.Root().String(),
	}))
	if err != nil {
		t.Fatalf("CreateDistribution failed: %v", err)
	}
	id := created.Msg.Distribution.ID
	if _, err := admin.ActivateDistribution(ctx, connect.NewRequest(&DistributionRequest{DistributionID: id})); err != nil {
		t.Fatalf("ActivateDistribution failed: %v", err)
	}

	_, proof, err := tree.Proof("alice")
	if err != nil {
		t.Fatalf("Proof failed: %v", err)
	}

	_, err = alice.Claim(ctx, connect.NewRequest(&ClaimRequest{
		DistributionID: id, BeneficiaryID: "alice", Amount: 601, Proof: merkle.FormatProof(proof),
	}))
	wantCode(t, err, connect.CodeInvalidArgument)

	_, err = alice.Claim(ctx, connect.NewRequest(&ClaimRequest{
		DistributionID: id, BeneficiaryID: "alice", Amount: 600, Proof: merkle.FormatProof(proof),
	}))
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	_, err = alice.GetEntitlement(ctx, connect.NewRequest(&EntitlementRequest{DistributionID: id, BeneficiaryID: "alice"}))
	wantCode(t, err, connect.CodeInvalidArgument)
}

func TestAuthorization(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()

	srv.mint(t, "property-1", "alice", 1)
	srv.mint(t, "property-1", "bob", 1)
	srv.mint(t, "USDC", "funding", 1000)

	admin := srv.client(t, "ops", auth.RoleAdmin)
	alice := srv.client(t, "alice", auth.RoleBeneficiary)
	anonymous := srv.client(t, "", "")

	created, err := admin.CreateDistribution(ctx, connect.NewRequest(&CreateDistributionRequest{
		AssetID: "property-1", FundingAsset: "USDC", Kind: "dividend", GrossAmount: 1000,
	}))
	if err != nil {
		t.Fatalf("CreateDistribution failed: %v", err)
	}
	id := created.Msg.Distribution.ID
	if _, err := admin.ActivateDistribution(ctx, connect.NewRequest(&DistributionRequest{DistributionID: id})); err != nil {
		t.Fatalf("ActivateDistribution failed: %v", err)
	}

	tests := []struct {
		name string
		call func() error
		code connect.Code
	}{
		{
			name: "anonymous read",
			call: func() error {
				_, err := anonymous.GetDistribution(ctx, connect.NewRequest(&DistributionRequest{DistributionID: id}))
				return err
			},
			code: connect.CodeUnauthenticated,
		},
		{
			name: "beneficiary creates",
			call: func() error {
				_, err := alice.CreateDistribution(ctx, connect.NewRequest(&CreateDistributionRequest{
					AssetID: "property-1", FundingAsset: "USDC", Kind: "rent", GrossAmount: 1,
				}))
				return err
			},
			code: connect.CodePermissionDenied,
		},
		{
			name: "beneficiary cancels",
			call: func() error {
				_, err := alice.CancelDistribution(ctx, connect.NewRequest(&DistributionRequest{DistributionID: id}))
				return err
			},
			code: connect.CodePermissionDenied,
		},
		{
			name: "beneficiary claims for another",
			call: func() error {
				_, err := alice.Claim(ctx, connect.NewRequest(&ClaimRequest{DistributionID: id, BeneficiaryID: "bob", Amount: 1}))
				return err
			},
			code: connect.CodePermissionDenied,
		},
		{
			name: "beneficiary reads another's claim",
			call: func() error {
				_, err := alice.GetClaim(ctx, connect.NewRequest(&GetClaimRequest{DistributionID: id, BeneficiaryID: "bob"}))
				return err
			},
			code: connect.CodePermissionDenied,
		},
		{
			name: "beneficiary recovers",
			call: func() error {
				_, err := alice.Recover(ctx, connect.NewRequest(&RecoverRequest{DistributionID: id, Receiver: "alice"}))
				return err
			},
			code: connect.CodePermissionDenied,
		},
		{
			name: "beneficiary audits",
			call: func() error {
				_, err := alice.Reconcile(ctx, connect.NewRequest(&DistributionRequest{DistributionID: id}))
				return err
			},
			code: connect.CodePermissionDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantCode(t, tt.call(), tt.code)
		})
	}

	t.Run("forged token", func(t *testing.T) {
		forger := auth.NewJWTManager("wrong-secret", time.Hour)
		token, err := forger.Generate(auth.Principal{Subject: "mallory", Role: auth.RoleAdmin})
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		client := NewDistributionServiceClient(http.DefaultClient, srv.url, connect.WithInterceptors(bearer(token)))
		_, err = client.CancelDistribution(ctx, connect.NewRequest(&DistributionRequest{DistributionID: id}))
		wantCode(t, err, connect.CodeUnauthenticated)
	})

	t.Run("admin claims on behalf", func(t *testing.T) {
		if _, err := admin.Claim(ctx, connect.NewRequest(&ClaimRequest{DistributionID: id, BeneficiaryID: "bob", Amount: 492})); err != nil {
			t.Errorf("Claim failed: %v", err)
		}
	})
}

func TestErrorCodes(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()

	srv.mint(t, "property-1", "alice", 1)
	srv.mint(t, "USDC", "funding", 1000)
	admin := srv.client(t, "ops", auth.RoleAdmin)

	created, err := admin.CreateDistribution(ctx, connect.NewRequest(&CreateDistributionRequest{
		AssetID: "property-1", FundingAsset: "USDC", Kind: "rent", GrossAmount: 1000,
	}))
	if err != nil {
		t.Fatalf("CreateDistribution failed: %v", err)
	}
	id := created.Msg.Distribution.ID

	_, err = admin.Claim(ctx, connect.NewRequest(&ClaimRequest{DistributionID: id, BeneficiaryID: "alice", Amount: 1}))
	wantCode(t, err, connect.CodeFailedPrecondition)

	if _, err := admin.ActivateDistribution(ctx, connect.NewRequest(&DistributionRequest{DistributionID: id})); err != nil {
		t.Fatalf("ActivateDistribution failed: %v", err)
	}

	tests := []struct {
		name string
		call func() error
		code connect.Code
	}{
		{
			name: "unknown distribution",
			call: func() error {
				_, err := admin.GetDistribution(ctx, connect.NewRequest(&DistributionRequest{DistributionID: 404}))
				return err
			},
			code: connect.CodeNotFound,
		},
		{
			name: "zero amount",
			call: func() error {
				_, err := admin.Claim(ctx, connect.NewRequest(&ClaimRequest{DistributionID: id, BeneficiaryID: "alice"}))
				return err
			},
			code: connect.CodeInvalidArgument,
		},
		{
			name: "above entitlement",
			call: func() error {
				_, err := admin.Claim(ctx, connect.NewRequest(&ClaimRequest{DistributionID: id, BeneficiaryID: "alice", Amount: 986}))
				return err
			},
			code: connect.CodeOutOfRange,
		},
		{
			name: "recover while active",
			call: func() error {
				_, err := admin.Recover(ctx, connect.NewRequest(&RecoverRequest{DistributionID: id, Receiver: "ops"}))
				return err
			},
			code: connect.CodeFailedPrecondition,
		},
		{
			name: "activate twice",
			call: func() error {
				_, err := admin.ActivateDistribution(ctx, connect.NewRequest(&DistributionRequest{DistributionID: id}))
				return err
			},
			code: connect.CodeFailedPrecondition,
		},
		{
			name: "unknown kind",
			call: func() error {
				_, err := admin.CreateDistribution(ctx, connect.NewRequest(&CreateDistributionRequest{
					AssetID: "property-1", FundingAsset: "USDC", Kind: "royalty", GrossAmount: 1,
				}))
				return err
			},
			code: connect.CodeInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantCode(t, tt.call(), tt.code)
		})
	}

	quote, err := admin.QuoteFees(ctx, connect.NewRequest(&QuoteFeesRequest{GrossAmount: 20000}))
	if err != nil {
		t.Fatalf("QuoteFees failed: %v", err)
	}
	if quote.Msg.PlatformFee != 200 || quote.Msg.MaintenanceFee != 100 || quote.Msg.NetAmount != 19700 {
		t.Errorf("QuoteFees = %+v", quote.Msg)
	}
}

func TestToConnectError(t *testing.T) {
	tests := []struct {
		err  error
		code connect.Code
	}{
		{engine.ErrInvalidProof, connect.CodeInvalidArgument},
		{engine.ErrDistributionNotFound, connect.CodeNotFound},
		{engine.ErrAlreadyClaimed, connect.CodeAlreadyExists},
		{engine.ErrAlreadyRecovered, connect.CodeAlreadyExists},
		{engine.ErrCancelNotEmpty, connect.CodeFailedPrecondition},
		{engine.ErrInsufficientRemainingPool, connect.CodeFailedPrecondition},
		{engine.ErrAmountExceedsEntitlement, connect.CodeOutOfRange},
		{engine.ErrTransferFailed, connect.CodeUnavailable},
		{context.Canceled, connect.CodeCanceled},
		{errors.New("disk on fire"), connect.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			err := toConnectError("Test", fmt.Errorf("wrapped: %w", tt.err))
			if got := connect.CodeOf(err); got != tt.code {
				t.Errorf("code = %v, want %v", got, tt.code)
			}
		})
	}

	// Unexpected errors do not leak their text.
	err := toConnectError("Test", errors.New("disk on fire"))
	if strings.Contains(err.Error(), "disk") {
		t.Errorf("internal error leaked: %v", err)
	}
}

func TestAmountsEncodeAsStrings(t *testing.T) {
	data, err := jsonCodec{}.Marshal(&QuoteFeesResponse{NetAmount: 1 << 60})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"net_amount":"1152921504606846976"`) {
		t.Errorf("encoded = %s", data)
	}

	var req ClaimRequest
	if err := (jsonCodec{}).Unmarshal([]byte(`{"distribution_id":"7","beneficiary_id":"alice","amount":"9007199254740993"}`), &req); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if req.DistributionID != 7 || req.Amount != 9007199254740993 {
		t.Errorf("decoded = %+v", req)
	}
}
