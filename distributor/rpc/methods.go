package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"github.com/xla-labs/waterfall-hub/distributor/engine"
	"github.com/xla-labs/waterfall-hub/distributor/factory"
	"github.com/xla-labs/waterfall-hub/distributor/hub"
	"github.com/xla-labs/waterfall-hub/distributor/models"
	"github.com/xla-labs/waterfall-hub/distributor/oracle"
)

var (
	instancesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waterfall_instances_created_total",
		Help: "Number of waterfall instances created",
	})
	distributionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waterfall_distribution_runs_total",
		Help: "Number of distribution runs by path and outcome",
	}, []string{"path", "outcome"})
)

// Service exposes the hub over HTTP. Price feeds are configured by symbol at
// startup and instances reference them by name.
type Service struct {
	hub         *hub.Hub
	feeds       map[string]oracle.PriceFeed
	maxPriceAge time.Duration
}

func NewService(h *hub.Hub, feeds map[string]oracle.PriceFeed, maxPriceAge time.Duration) *Service {
	if feeds == nil {
		feeds = make(map[string]oracle.PriceFeed)
	}
	return &Service{hub: h, feeds: feeds, maxPriceAge: maxPriceAge}
}

// Routes mounts the API onto the router.
func (s *Service) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/waterfalls", s.handleCreate)
		r.Get("/waterfalls", s.handleList)
		r.Route("/waterfalls/{address}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Post("/recipients", s.handleSetRecipients)
			r.Post("/controller", s.handleSetController)
			r.Post("/owner", s.handleTransferOwnership)
			r.Post("/distributors", s.handleSetDistributor)
			r.Post("/tokens", s.handleSetTokenFeed)
			r.Post("/distribute", s.handleDistribute)
		})
		r.Post("/transfers", s.handleTransfer)
		r.Get("/balances/{address}", s.handleBalance)
	})
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateWaterfallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to decode request: %w", err))
		return
	}

	params, err := s.buildParams(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	addr, err := s.hub.CreateWaterfall(engine.Address(req.Creator), params)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	instancesCreated.Inc()
	writeJSON(w, http.StatusCreated, models.CreateWaterfallResponse{Address: string(addr)})
}

func (s *Service) buildParams(req *models.CreateWaterfallRequest) (factory.Params, error) {
	variant, err := parseVariant(req.Variant)
	if err != nil {
		return factory.Params{}, err
	}

	recipients, err := parseRecipients(req.Recipients)
	if err != nil {
		return factory.Params{}, err
	}

	minAuto, err := parseAmount(req.MinAutoDistributeAmount)
	if err != nil {
		return factory.Params{}, fmt.Errorf("min_auto_distribute_amount: %w", err)
	}

	var nativeFeed oracle.PriceFeed
	if variant == engine.VariantUSD {
		nativeFeed, err = s.feedFor(req.NativeFeedSymbol)
		if err != nil {
			return factory.Params{}, err
		}
	}

	tokens := make([]engine.TokenConfig, 0, len(req.SupportedTokens))
	for _, tc := range req.SupportedTokens {
		var feed oracle.PriceFeed
		if tc.FeedSymbol != "" {
			feed, err = s.feedFor(tc.FeedSymbol)
			if err != nil {
				return factory.Params{}, err
			}
		}
		tokens = append(tokens, engine.TokenConfig{Token: engine.Address(tc.Token), Feed: feed})
	}

	distributors := make([]engine.Address, 0, len(req.Distributors))
	for _, d := range req.Distributors {
		distributors = append(distributors, engine.Address(d))
	}

	return factory.Params{
		Controller:              engine.Address(req.Controller),
		ImmutableController:     req.ImmutableController,
		Distributors:            distributors,
		AutoNativeDistribution:  req.AutoNativeDistribution,
		MinAutoDistributeAmount: minAuto,
		Variant:                 variant,
		NativeUsdFeed:           nativeFeed,
		SupportedTokens:         tokens,
		MaxPriceAge:             s.maxPriceAge,
		Recipients:              recipients,
		CreationID:              req.CreationID,
	}, nil
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	addrs := s.hub.Instances()
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, string(a))
	}
	writeJSON(w, http.StatusOK, models.InstanceListResponse{Instances: out})
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	addr := engine.Address(chi.URLParam(r, "address"))
	wf, err := s.hub.Instance(addr)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	resp := models.InstanceResponse{
		Address:            string(addr),
		Owner:              string(wf.Owner()),
		Controller:         string(wf.Controller()),
		Variant:            wf.Variant().String(),
		PlatformFee:        wf.PlatformFee(),
		CurrentRecipient:   string(wf.CurrentRecipient()),
		NumberOfRecipients: wf.NumberOfRecipients(),
		NativeBalance:      s.hub.NativeBalance(addr).String(),
	}
	for i := 0; i < wf.NumberOfRecipients(); i++ {
		ra, err := wf.RecipientAt(i)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		data, _ := wf.RecipientData(ra)
		resp.Recipients = append(resp.Recipients, models.RecipientState{
			Address:  string(ra),
			MaxCap:   data.MaxCap.String(),
			Received: data.Received.String(),
			Priority: data.Priority,
		})
	}
	for _, token := range wf.SupportedTokens() {
		resp.SupportedTokens = append(resp.SupportedTokens, string(token))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleSetRecipients(w http.ResponseWriter, r *http.Request) {
	addr := engine.Address(chi.URLParam(r, "address"))
	var req models.SetRecipientsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to decode request: %w", err))
		return
	}

	recipients, err := parseRecipients(req.Recipients)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.hub.SetRecipients(engine.Address(req.Caller), addr, recipients); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "ok"})
}

func (s *Service) handleSetController(w http.ResponseWriter, r *http.Request) {
	addr := engine.Address(chi.URLParam(r, "address"))
	var req models.SetControllerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to decode request: %w", err))
		return
	}

	if err := s.hub.SetController(engine.Address(req.Caller), addr, engine.Address(req.Controller)); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "ok"})
}

func (s *Service) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	addr := engine.Address(chi.URLParam(r, "address"))
	var req models.TransferOwnershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to decode request: %w", err))
		return
	}

	if err := s.hub.TransferOwnership(engine.Address(req.Caller), addr, engine.Address(req.Owner)); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "ok"})
}

func (s *Service) handleSetDistributor(w http.ResponseWriter, r *http.Request) {
	addr := engine.Address(chi.URLParam(r, "address"))
	var req models.SetDistributorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to decode request: %w", err))
		return
	}

	err := s.hub.SetDistributor(engine.Address(req.Caller), addr, engine.Address(req.Distributor), req.Enabled)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "ok"})
}

func (s *Service) handleSetTokenFeed(w http.ResponseWriter, r *http.Request) {
	addr := engine.Address(chi.URLParam(r, "address"))
	var req models.SetTokenFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to decode request: %w", err))
		return
	}

	var feed oracle.PriceFeed
	if req.FeedSymbol != "" {
		var err error
		feed, err = s.feedFor(req.FeedSymbol)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	err := s.hub.SetTokenPriceFeed(engine.Address(req.Caller), addr, engine.Address(req.Token), feed)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "ok"})
}

func (s *Service) handleDistribute(w http.ResponseWriter, r *http.Request) {
	addr := engine.Address(chi.URLParam(r, "address"))
	var req models.DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to decode request: %w", err))
		return
	}

	path := "native"
	var err error
	if req.Token == "" {
		err = s.hub.RedistributeNative(engine.Address(req.Caller), addr)
	} else {
		path = "token"
		err = s.hub.RedistributeToken(engine.Address(req.Caller), addr, engine.Address(req.Token))
	}
	if err != nil {
		distributionRuns.WithLabelValues(path, "error").Inc()
		writeError(w, statusFor(err), err)
		return
	}

	distributionRuns.WithLabelValues(path, "ok").Inc()
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "ok"})
}

func (s *Service) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req models.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to decode request: %w", err))
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil || amount == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("amount: %w", errOrMissing(err)))
		return
	}

	from, to := engine.Address(req.From), engine.Address(req.To)
	if req.Token == "" {
		err = s.hub.TransferNative(from, to, amount)
	} else {
		err = s.hub.TransferToken(engine.Address(req.Token), from, to, amount)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "ok"})
}

func (s *Service) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr := engine.Address(chi.URLParam(r, "address"))
	token := r.URL.Query().Get("token")

	var balance *big.Int
	if token == "" {
		balance = s.hub.NativeBalance(addr)
	} else {
		balance = s.hub.TokenBalance(engine.Address(token), addr)
	}

	writeJSON(w, http.StatusOK, models.BalanceResponse{
		Address: string(addr),
		Token:   token,
		Balance: balance.String(),
	})
}

func (s *Service) feedFor(symbol string) (oracle.PriceFeed, error) {
	if symbol == "" {
		return nil, fmt.Errorf("feed symbol is required")
	}
	feed, ok := s.feeds[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown feed symbol: %s", symbol)
	}
	return feed, nil
}

// parseAmount parses a non-negative integer amount in base units. Empty
// means absent.
func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.IsInteger() || d.IsNegative() {
		return nil, fmt.Errorf("amount %q must be a non-negative integer in base units", s)
	}
	return d.BigInt(), nil
}

func parseRecipients(in []models.RecipientInput) ([]engine.RecipientSpec, error) {
	specs := make([]engine.RecipientSpec, 0, len(in))
	for _, ri := range in {
		maxCap, err := parseAmount(ri.MaxCap)
		if err != nil || maxCap == nil {
			return nil, fmt.Errorf("recipient %s max_cap: %w", ri.Address, errOrMissing(err))
		}
		specs = append(specs, engine.RecipientSpec{
			Address:  engine.Address(ri.Address),
			MaxCap:   maxCap,
			Priority: ri.Priority,
		})
	}
	return specs, nil
}

func parseVariant(s string) (engine.Variant, error) {
	switch s {
	case "", "native":
		return engine.VariantNative, nil
	case "usd":
		return engine.VariantUSD, nil
	default:
		return 0, fmt.Errorf("unknown variant: %s", s)
	}
}

func errOrMissing(err error) error {
	if err != nil {
		return err
	}
	return errors.New("value is required")
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, hub.ErrInstanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrOnlyOwner),
		errors.Is(err, engine.ErrOnlyController),
		errors.Is(err, engine.ErrOnlyDistributor):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrPendingDistribution),
		errors.Is(err, engine.ErrImmutableController),
		errors.Is(err, engine.ErrRecipientAlreadyAdded),
		errors.Is(err, factory.ErrCreationIDProcessed):
		return http.StatusConflict
	case errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrInvalidPrice):
		return http.StatusBadGateway
	case errors.Is(err, engine.ErrNoRecipients),
		errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrInvalidFeePercentage),
		errors.Is(err, engine.ErrTokenNotSupported),
		errors.Is(err, engine.ErrTokenPriceFeedMissing):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, models.ErrorResponse{Error: err.Error()})
}
