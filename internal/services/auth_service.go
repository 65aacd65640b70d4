package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/smallbank/backend/internal/models"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
}

// LoginRequest authenticates by phone number.
type LoginRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
	Password    string `json:"password" validate:"required,min=6"`
}

// RegisterRequest creates a customer with a zero opening balance.
type RegisterRequest struct {
	Name        string `json:"name" validate:"required,min=2"`
	Surname     string `json:"surname" validate:"required,min=2"`
	PhoneNumber string `json:"phone_number" validate:"required"`
	Password    string `json:"password" validate:"required,min=6"`
	BirthDate   string `json:"birth_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type AuthResponse struct {
	Token    string          `json:"token"`
	Customer models.Customer `json:"customer"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
	}
}

// Register creates a new customer and returns a signed token.
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Registration failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.PhoneNumber, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	customer := models.Customer{
		UID:         uuid.New(),
		Name:        req.Name,
		Surname:     req.Surname,
		PhoneNumber: req.PhoneNumber,
		Balance:     decimal.Zero,
	}
	if req.BirthDate != "" {
		birthDate, _ := time.Parse("2006-01-02", req.BirthDate)
		customer.BirthDate = &birthDate
	}

	err = s.db.QueryRowContext(r.Context(), `
		INSERT INTO customers (uid, name, surname, birth_date, phone_number, balance, password)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		customer.UID, customer.Name, customer.Surname, customer.BirthDate,
		customer.PhoneNumber, customer.Balance, hashedPassword,
	).Scan(&customer.ID)
	if err != nil {
		log.Printf("[AUTH] Customer creation failed for %s: %v", req.PhoneNumber, err)
		SendErrorResponse(w, "Phone Number Already Registered", http.StatusConflict, nil)
		return
	}

	log.Printf("[AUTH] Customer created successfully - uid: %s", customer.UID)

	token, err := generateJWT(customer.UID)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for customer %s: %v", customer.UID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(AuthResponse{Token: token, Customer: customer})
}

// Login authenticates a customer by phone number and password.
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var (
		customer       models.Customer
		hashedPassword string
	)
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, uid, name, surname, birth_date, phone_number, balance, password
		FROM customers
		WHERE phone_number = $1`, req.PhoneNumber,
	).Scan(&customer.ID, &customer.UID, &customer.Name, &customer.Surname,
		&customer.BirthDate, &customer.PhoneNumber, &customer.Balance, &hashedPassword)
	if err != nil {
		log.Printf("[AUTH] Customer not found for phone number: %s", req.PhoneNumber)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for customer: %s", customer.UID)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateJWT(customer.UID)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for customer %s: %v", customer.UID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for customer %s", customer.UID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, Customer: customer})
}

// Logout blacklists the presented token until it would have expired.
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// Profile returns the authenticated customer's record.
func (s *AuthService) Profile(w http.ResponseWriter, r *http.Request) {
	customerUID, ok := r.Context().Value("customerUID").(string)
	if !ok || customerUID == "" {
		log.Printf("[AUTH] Unauthorized profile request - no customer uid in context")
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var customer models.Customer
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, uid, name, surname, birth_date, phone_number, balance
		FROM customers
		WHERE uid = $1`, customerUID,
	).Scan(&customer.ID, &customer.UID, &customer.Name, &customer.Surname,
		&customer.BirthDate, &customer.PhoneNumber, &customer.Balance)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Customer not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[AUTH] Failed to fetch customer %s: %v", customerUID, err)
			SendErrorResponse(w, "Failed to fetch customer details", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(customer)
}

func generateJWT(customerUID uuid.UUID) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"customer_uid": customerUID.String(),
		"exp":          time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}
