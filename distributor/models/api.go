// Package models holds the JSON types of the distributor HTTP API. All
// amounts cross the wire as decimal strings in base units; parsing and range
// checks happen at the API boundary.
package models

// RecipientInput is one recipient in a creation or replacement request.
type RecipientInput struct {
	Address  string `json:"address"`
	MaxCap   string `json:"max_cap"`
	Priority uint64 `json:"priority"`
}

// TokenInput declares a supported token, optionally bound to a configured
// price feed by symbol.
type TokenInput struct {
	Token      string `json:"token"`
	FeedSymbol string `json:"feed_symbol,omitempty"`
}

// CreateWaterfallRequest creates a new waterfall instance.
type CreateWaterfallRequest struct {
	Creator             string   `json:"creator"`
	Controller          string   `json:"controller"`
	ImmutableController bool     `json:"immutable_controller"`
	Distributors        []string `json:"distributors"`

	AutoNativeDistribution  bool   `json:"auto_native_distribution"`
	MinAutoDistributeAmount string `json:"min_auto_distribute_amount,omitempty"`

	// Variant is "native" or "usd".
	Variant          string `json:"variant"`
	NativeFeedSymbol string `json:"native_feed_symbol,omitempty"`

	SupportedTokens []TokenInput     `json:"supported_tokens,omitempty"`
	Recipients      []RecipientInput `json:"recipients"`

	CreationID string `json:"creation_id,omitempty"`
}

// CreateWaterfallResponse returns the derived instance address.
type CreateWaterfallResponse struct {
	Address string `json:"address"`
}

// SetRecipientsRequest replaces an instance's recipient queue.
type SetRecipientsRequest struct {
	Caller     string           `json:"caller"`
	Recipients []RecipientInput `json:"recipients"`
}

// SetControllerRequest changes an instance's controller.
type SetControllerRequest struct {
	Caller     string `json:"caller"`
	Controller string `json:"controller"`
}

// TransferOwnershipRequest hands an instance's owner role over.
type TransferOwnershipRequest struct {
	Caller string `json:"caller"`
	Owner  string `json:"owner"`
}

// SetDistributorRequest grants or revokes the distributor role.
type SetDistributorRequest struct {
	Caller      string `json:"caller"`
	Distributor string `json:"distributor"`
	Enabled     bool   `json:"enabled"`
}

// SetTokenFeedRequest registers a supported token on an instance.
type SetTokenFeedRequest struct {
	Caller     string `json:"caller"`
	Token      string `json:"token"`
	FeedSymbol string `json:"feed_symbol,omitempty"`
}

// DistributeRequest triggers a distribution run. An empty token means the
// native path.
type DistributeRequest struct {
	Caller string `json:"caller"`
	Token  string `json:"token,omitempty"`
}

// TransferRequest moves funds between accounts. An empty token means native.
type TransferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Token  string `json:"token,omitempty"`
}

// RecipientState is the live state of one queued recipient.
type RecipientState struct {
	Address  string `json:"address"`
	MaxCap   string `json:"max_cap"`
	Received string `json:"received"`
	Priority uint64 `json:"priority"`
}

// InstanceResponse is the full read view of one instance.
type InstanceResponse struct {
	Address            string           `json:"address"`
	Owner              string           `json:"owner"`
	Controller         string           `json:"controller"`
	Variant            string           `json:"variant"`
	PlatformFee        uint64           `json:"platform_fee"`
	CurrentRecipient   string           `json:"current_recipient"`
	NumberOfRecipients int              `json:"number_of_recipients"`
	Recipients         []RecipientState `json:"recipients"`
	NativeBalance      string           `json:"native_balance"`
	SupportedTokens    []string         `json:"supported_tokens,omitempty"`
}

// InstanceListResponse lists registered instance addresses.
type InstanceListResponse struct {
	Instances []string `json:"instances"`
}

// BalanceResponse is one account balance.
type BalanceResponse struct {
	Address string `json:"address"`
	Token   string `json:"token,omitempty"`
	Balance string `json:"balance"`
}

// StatusResponse acknowledges a state-changing call.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries a failed call's error.
type ErrorResponse struct {
	Error string `json:"error"`
}
