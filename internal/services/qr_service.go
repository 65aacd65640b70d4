package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

// qrTTL bounds how long a generated payment code stays redeemable.
const qrTTL = 5 * time.Minute

// ErrQRStoreUnavailable is returned when the code store is not
// connected. Codes must be single use, which requires Redis; the
// endpoints degrade instead of the whole server.
var ErrQRStoreUnavailable = errors.New("QR code store unavailable")

// QRPayload is what a scanned code resolves to: a customer requesting
// a movement of a given amount.
type QRPayload struct {
	CustomerUID uuid.UUID       `json:"customer_uid"`
	Amount      decimal.Decimal `json:"amount"`
	Timestamp   int64           `json:"timestamp"`
	Nonce       string          `json:"nonce"`
}

type QRService struct {
	redis *redis.Client
}

func NewQRService(redisClient *redis.Client) *QRService {
	return &QRService{
		redis: redisClient,
	}
}

// GenerateQRCode produces a single-use payment code for the customer
// and amount. Returns the opaque code plus a base64 PNG rendering.
func (s *QRService) GenerateQRCode(ctx context.Context, customerUID uuid.UUID, amount decimal.Decimal) (string, string, error) {
	if s.redis == nil {
		return "", "", ErrQRStoreUnavailable
	}

	payload := QRPayload{
		CustomerUID: customerUID,
		Amount:      amount,
		Timestamp:   time.Now().Unix(),
		Nonce:       s.generateNonce(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", "", err
	}

	code := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("qr:%s", code)
	if err := s.redis.Set(ctx, key, jsonData, qrTTL).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	qrImage := base64.StdEncoding.EncodeToString(buf.Bytes())

	return code, qrImage, nil
}

// RedeemQRCode resolves a scanned code to its payload and consumes it.
// A code is redeemable exactly once inside its TTL.
func (s *QRService) RedeemQRCode(ctx context.Context, code string) (*QRPayload, error) {
	if s.redis == nil {
		return nil, ErrQRStoreUnavailable
	}

	key := fmt.Sprintf("qr:%s", code)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, NewNotFoundError("Invalid or expired QR code")
	}
	if err != nil {
		return nil, err
	}

	var payload QRPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)

	return &payload, nil
}

func (s *QRService) generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
