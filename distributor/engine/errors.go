package engine

import "errors"

// The error taxonomy mirrors the failure signals a caller can observe.
// Every error rejects its whole call; the hub restores any state the call
// touched before failing, so none of these ever leave partial effects behind.
var (
	// ErrOnlyOwner rejects owner-gated calls from anyone else.
	ErrOnlyOwner = errors.New("caller is not the owner")

	// ErrOnlyController rejects recipient-queue mutation by non-controllers.
	ErrOnlyController = errors.New("caller is not the controller")

	// ErrOnlyDistributor rejects distribution triggers by non-distributors.
	ErrOnlyDistributor = errors.New("caller is not a distributor")

	// ErrImmutableController rejects controller changes on instances created
	// with a permanently locked controller.
	ErrImmutableController = errors.New("controller is immutable")

	// ErrRecipientAlreadyAdded rejects a setRecipients batch containing the
	// same address twice.
	ErrRecipientAlreadyAdded = errors.New("recipient already added")

	// ErrNoRecipients rejects an empty setRecipients batch.
	ErrNoRecipients = errors.New("no recipients supplied")

	// ErrPendingDistribution rejects queue replacement while the current
	// generation is still owed the instance's undistributed balance.
	ErrPendingDistribution = errors.New("undistributed balance pending for current recipients")

	// ErrInvalidFeePercentage rejects a platform fee above the denominator.
	ErrInvalidFeePercentage = errors.New("invalid platform fee percentage")

	// ErrTokenNotSupported rejects token distribution for a token the
	// instance was never configured with.
	ErrTokenNotSupported = errors.New("token not supported")

	// ErrTokenPriceFeedMissing rejects USD-variant token distribution when no
	// price feed is registered for the token.
	ErrTokenPriceFeedMissing = errors.New("token price feed missing")

	// ErrRecipientIndexOutOfRange rejects reads past the end of the queue.
	ErrRecipientIndexOutOfRange = errors.New("recipient index out of range")

	// ErrAlreadyInitialized rejects a second initialize call.
	ErrAlreadyInitialized = errors.New("instance already initialized")

	// ErrNotInitialized rejects operations on an instance that was never
	// initialized by its deployer.
	ErrNotInitialized = errors.New("instance not initialized")

	// ErrInvalidAmount rejects nil or negative amounts at the boundary.
	ErrInvalidAmount = errors.New("invalid amount")
)
