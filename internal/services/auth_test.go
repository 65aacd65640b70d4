package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setAuthTestConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
}

func TestAuthService_Register(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setAuthTestConfig()

	service := NewAuthService(db, nil)

	t.Run("successful registration", func(t *testing.T) {
		req := RegisterRequest{
			Name:        "Jane",
			Surname:     "Doe",
			PhoneNumber: "+15550001111",
			Password:    "password123",
		}

		mock.ExpectQuery("INSERT INTO customers").
			WithArgs(sqlmock.AnyArg(), req.Name, req.Surname, nil, req.PhoneNumber, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, req.PhoneNumber, response.Customer.PhoneNumber)
		assert.NotEqual(t, uuid.Nil, response.Customer.UID)
		assert.True(t, response.Customer.Balance.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate phone number", func(t *testing.T) {
		req := RegisterRequest{
			Name:        "Jane",
			Surname:     "Doe",
			PhoneNumber: "+15550001111",
			Password:    "password123",
		}

		mock.ExpectQuery("INSERT INTO customers").
			WithArgs(sqlmock.AnyArg(), req.Name, req.Surname, nil, req.PhoneNumber, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnError(sql.ErrConnDone)

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuthService_Login(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setAuthTestConfig()

	service := NewAuthService(db, nil)

	t.Run("successful login", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")
		customerUID := uuid.New()

		mock.ExpectQuery("SELECT id, uid, name, surname, birth_date, phone_number, balance, password FROM customers").
			WithArgs("+15550001111").
			WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "name", "surname", "birth_date", "phone_number", "balance", "password"}).
				AddRow(1, customerUID.String(), "Jane", "Doe", nil, "+15550001111", "100.00", hashedPassword))

		req := LoginRequest{
			PhoneNumber: "+15550001111",
			Password:    "password123",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, customerUID, response.Customer.UID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("customer not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, uid, name, surname, birth_date, phone_number, balance, password FROM customers").
			WithArgs("+15559999999").
			WillReturnError(sql.ErrNoRows)

		req := LoginRequest{
			PhoneNumber: "+15559999999",
			Password:    "password123",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong password", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")
		customerUID := uuid.New()

		mock.ExpectQuery("SELECT id, uid, name, surname, birth_date, phone_number, balance, password FROM customers").
			WithArgs("+15550001111").
			WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "name", "surname", "birth_date", "phone_number", "balance", "password"}).
				AddRow(1, customerUID.String(), "Jane", "Doe", nil, "+15550001111", "100.00", hashedPassword))

		req := LoginRequest{
			PhoneNumber: "+15550001111",
			Password:    "not-the-password",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPasswordHashing(t *testing.T) {
	setAuthTestConfig()

	password := "testpassword"

	hashed, err := hashPassword(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hashed)

	assert.True(t, verifyPassword(password, hashed))
	assert.False(t, verifyPassword("wrongpassword", hashed))
}

func TestGenerateJWT(t *testing.T) {
	setAuthTestConfig()

	customerUID := uuid.New()
	token, err := generateJWT(customerUID)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	assert.NoError(t, err)
	assert.True(t, parsed.Valid)

	claims, ok := parsed.Claims.(jwt.MapClaims)
	assert.True(t, ok)
	assert.Equal(t, customerUID.String(), claims["customer_uid"])
}
