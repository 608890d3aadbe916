package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrSignatureMismatch is returned when a payment confirmation signature does
// not match the one computed with the shared secret. It is terminal for the
// confirmation attempt.
var ErrSignatureMismatch = errors.New("payment verification failed")

// Intent is a gateway-side record of an expected payment, created before the
// customer pays. Amount is in the smallest currency unit.
type Intent struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

// Gateway creates and looks up payment intents at the payment provider.
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency, receipt string) (*Intent, error)
	FetchIntent(ctx context.Context, id string) (*Intent, error)
}

const receiptPrefix = "rcpt_"

// Receipt returns the receipt reference for an intent created on behalf of
// userID. The reference embeds a digest of the user id so a confirmation can
// be matched to the customer who started the checkout.
func Receipt(userID string, at time.Time) string {
	return receiptPrefix + userDigest(userID) + "_" + strconv.FormatInt(at.UnixMilli(), 10)
}

// IssuedTo reports whether the intent's receipt was created for userID.
func (i *Intent) IssuedTo(userID string) bool {
	return strings.HasPrefix(i.Receipt, receiptPrefix+userDigest(userID)+"_")
}

// Covers returns ErrSignatureMismatch unless the intent is for exactly
// amount in currency.
func (i *Intent) Covers(amount decimal.Decimal, currency string) error {
	if want := MinorUnits(amount); i.Amount != want || !strings.EqualFold(i.Currency, currency) {
		return errors.Wrapf(ErrSignatureMismatch, "intent %s is for %d %s, order costs %d %s",
			i.ID, i.Amount, i.Currency, want, currency)
	}
	return nil
}

func userDigest(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:8])
}

// MinorUnits converts a decimal amount into the smallest currency unit
// (e.g. rupees to paise), rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Verifier checks payment confirmation signatures issued by the gateway.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier using the gateway's shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign returns the hex HMAC-SHA256 of orderID + "|" + paymentID.
func (v *Verifier) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID))
	mac.Write([]byte{'|'})
	mac.Write([]byte(paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify returns ErrSignatureMismatch unless signature equals Sign(orderID, paymentID).
// The comparison runs in constant time.
func (v *Verifier) Verify(orderID, paymentID, signature string) error {
	expected := v.Sign(orderID, paymentID)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}
