package auth

import (
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/jhoicas/facturacion-suscripciones/internal/application/dto"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain"
	"github.com/jhoicas/facturacion-suscripciones/pkg/jwt"
)

// JWTConfig configuración para generación de tokens.
type JWTConfig struct {
	Secret     string
	ExpMinutes int
	Issuer     string
}

// Operator operador con acceso a la API de facturación.
type Operator struct {
	Email        string
	PasswordHash string // bcrypt
	Role         string
}

// AuthUseCase login de operadores. No hay alta de usuarios: los operadores vienen de configuración.
type AuthUseCase struct {
	operators map[string]Operator
	jwtCfg    JWTConfig
}

// NewAuthUseCase construye el caso de uso de auth. Los operadores sin email o sin hash se ignoran.
func NewAuthUseCase(operators []Operator, jwtCfg JWTConfig) *AuthUseCase {
	byEmail := make(map[string]Operator, len(operators))
	for _, op := range operators {
		email := strings.ToLower(strings.TrimSpace(op.Email))
		if email == "" || op.PasswordHash == "" {
			continue
		}
		op.Email = email
		byEmail[email] = op
	}
	return &AuthUseCase{operators: byEmail, jwtCfg: jwtCfg}
}

// Enabled indica si hay al menos un operador configurado.
func (uc *AuthUseCase) Enabled() bool {
	return len(uc.operators) > 0
}

// Login verifica email/password y genera el JWT. Email desconocido y clave incorrecta
// devuelven el mismo error.
func (uc *AuthUseCase) Login(in dto.LoginRequest) (*dto.LoginResponse, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, domain.ErrInvalidInput
	}
	op, ok := uc.operators[strings.ToLower(strings.TrimSpace(in.Email))]
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(in.Password)); err != nil {
		return nil, domain.ErrUnauthorized
	}
	token, err := jwt.Generate(uc.jwtCfg.Secret, op.Email, op.Role, uc.jwtCfg.Issuer, uc.jwtCfg.ExpMinutes)
	if err != nil {
		return nil, err
	}
	return &dto.LoginResponse{
		Token:     token,
		Role:      op.Role,
		ExpiresIn: uc.jwtCfg.ExpMinutes * 60,
	}, nil
}
