package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"zenyx/internal/models"
)

var (
	botTokenRe       = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{35}$`)
	pushinPayTokenRe = regexp.MustCompile(`^\d+\|[A-Za-z0-9]{40,}$`)
	daysRe           = regexp.MustCompile(`(\d+)\s*dia`)
)

// LinkingCodeLength is the size of a channel linking code.
const LinkingCodeLength = 8

const linkingCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GeneratePlanID returns a short id used in purchase callbacks.
func GeneratePlanID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// RandomCode generates a random string of length drawn from charset.
func RandomCode(length int, charset string) string {
	b := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range b {
		n, _ := rand.Int(rand.Reader, max)
		b[i] = charset[n.Int64()]
	}
	return string(b)
}

// GenerateLinkingCode returns 8 uppercase alphanumeric characters.
func GenerateLinkingCode() string {
	return RandomCode(LinkingCodeLength, linkingCodeCharset)
}

// IsLinkingCodeShape reports whether text looks like a linking code.
// No store lookup happens for anything else.
func IsLinkingCodeShape(text string) bool {
	if len(text) != LinkingCodeLength {
		return false
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// IsValidBotToken checks the Telegram token shape: <digits>:<35 chars>.
func IsValidBotToken(token string) bool {
	return botTokenRe.MatchString(token)
}

// IsValidPushinPayToken checks the PushinPay credential shape: <digits>|<40+ alnum>.
func IsValidPushinPayToken(token string) bool {
	return pushinPayTokenRe.MatchString(token)
}

// MaskToken keeps the bot id and the last 4 characters, for logs.
func MaskToken(token string) string {
	idx := strings.IndexByte(token, ':')
	if idx <= 0 || len(token) < idx+5 {
		return "***"
	}
	return token[:idx] + ":***" + token[len(token)-4:]
}

// ParsePrice accepts "49.90", "49,90" or "R$ 49,90" and requires a positive value.
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price %q", models.ErrInvalidInput, s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: price must be positive", models.ErrInvalidInput)
	}
	return d.Round(2), nil
}

// FormatBRL renders an amount as "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac := s[:len(s)-3], s[len(s)-2:]

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	out := "R$ " + b.String() + "," + frac
	if neg {
		return "-" + out
	}
	return out
}

// ToCents converts a currency amount to integer minor units.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// ParsePlanInput parses "Nome | preço | duração" into a plan without an id.
func ParsePlanInput(text string) (*models.Plan, error) {
	parts := strings.Split(text, "|")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected name | price | duration", models.ErrInvalidInput)
	}

	name := strings.TrimSpace(parts[0])
	if name == "" {
		return nil, fmt.Errorf("%w: empty plan name", models.ErrInvalidInput)
	}
	price, err := ParsePrice(parts[1])
	if err != nil {
		return nil, err
	}

	durationText := strings.ToLower(strings.TrimSpace(parts[2]))
	plan := &models.Plan{Name: name, Price: price}

	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(stripAccents(durationText), func(r rune) bool { return !unicode.IsLetter(r) }) {
		words[w] = true
	}
	for _, d := range models.KnownDurations {
		if words[stripAccents(d.Key())] || words[string(d)] {
			plan.Duration = d
			return plan, nil
		}
	}

	if m := daysRe.FindStringSubmatch(durationText); m != nil {
		days, err := strconv.Atoi(m[1])
		if err != nil || days <= 0 {
			return nil, fmt.Errorf("%w: duration %q", models.ErrInvalidInput, durationText)
		}
		plan.Duration = models.DurationForDays(days)
		if plan.Duration == models.DurationCustom {
			plan.Days = days
		}
		return plan, nil
	}

	return nil, fmt.Errorf("%w: duration %q", models.ErrInvalidInput, durationText)
}

// ParseReferralPayload extracts the referrer id from a "/start ref_<id>" payload.
func ParseReferralPayload(payload string) (int64, bool) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, "ref_") {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(payload, "ref_"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ReferralLink builds the deep link that credits userID as referrer.
func ReferralLink(botUsername string, userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=ref_%d", botUsername, userID)
}

// Truncate cuts s to max runes.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func stripAccents(s string) string {
	return strings.NewReplacer("á", "a", "à", "a", "ã", "a", "â", "a", "é", "e", "ê", "e", "í", "i", "ó", "o", "ô", "o", "õ", "o", "ú", "u", "ç", "c").Replace(s)
}
