package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App     AppConfig
	DB      DBConfig
	JWT     JWTConfig
	Auth    AuthConfig
	HTTP    HTTPConfig
	AFIP    AFIPConfig
	Billing BillingConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// AFIPConfig configuración del web service de factura electrónica (WSFEv1).
type AFIPConfig struct {
	Env               string // "dev" = simulado, "homo" = homologación, "prod" = producción
	CUIT              string // CUIT del emisor (el marketplace)
	RazonSocial       string
	CondicionIVA      string // ej: "IVA Responsable Inscripto"
	Domicilio         string
	InicioActividades string // YYYY-MM-DD, se imprime en el PDF
	PuntoVenta        int
	TipoComprobante   int    // 1=A, 6=B, 11=C
	AlicuotaIVAID     int    // 5 = 21%
	Token             string // ticket de acceso WSAA vigente
	Sign              string
	Timeout           time.Duration
	SyncNumbering     bool // alinear numeración con FECompUltimoAutorizado al iniciar
}

// BillingConfig configuración del ciclo de facturación de suscripciones.
type BillingConfig struct {
	Enabled              bool
	Cron                 string // por defecto "1 0 * * *" (00:01)
	OverdueCron          string
	Timezone             string
	Workers              int
	SubscriptionTimeout  time.Duration
	DueDays              int
	AdvancePolicy        string // on_authorized | on_attempt
	DefaultPaymentMethod string
}

// Location devuelve la zona horaria del scheduler.
func (c BillingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// JWTConfig configuración de JWT.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// AuthConfig operadores que pueden pedir token por POST /api/auth/login.
// El hash es bcrypt (htpasswd -bnBC 10 "" clave). Sin hash el login queda deshabilitado.
type AuthConfig struct {
	AdminEmail        string
	AdminPasswordHash string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Políticas de avance del ciclo.
const (
	AdvanceOnAuthorized = "on_authorized"
	AdvanceOnAttempt    = "on_attempt"
)

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, AFIP_CUIT, BILLING_CRON, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return FromViper(v)
}

// FromViper construye la configuración desde una instancia de Viper ya cargada.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			Name:     getString(v, "APP_NAME", "facturacion-suscripciones"),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "marketplace"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "marketplace"),
		},
		Auth: AuthConfig{
			AdminEmail:        strings.ToLower(getString(v, "AUTH_ADMIN_EMAIL", "")),
			AdminPasswordHash: getString(v, "AUTH_ADMIN_PASSWORD_HASH", ""),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		AFIP: AFIPConfig{
			Env:               strings.ToLower(getString(v, "AFIP_ENV", "dev")),
			CUIT:              getString(v, "AFIP_CUIT", ""),
			RazonSocial:       getString(v, "AFIP_RAZON_SOCIAL", ""),
			CondicionIVA:      getString(v, "AFIP_CONDICION_IVA", "IVA Responsable Inscripto"),
			Domicilio:         getString(v, "AFIP_DOMICILIO", ""),
			InicioActividades: getString(v, "AFIP_INICIO_ACTIVIDADES", ""),
			PuntoVenta:        getInt(v, "AFIP_PUNTO_VENTA", 1),
			TipoComprobante:   getInt(v, "AFIP_TIPO_COMPROBANTE", 6),
			AlicuotaIVAID:     getInt(v, "AFIP_ALICUOTA_IVA_ID", 5),
			Token:             getString(v, "AFIP_TOKEN", ""),
			Sign:              getString(v, "AFIP_SIGN", ""),
			Timeout:           getDuration(v, "AFIP_TIMEOUT", 30*time.Second),
			SyncNumbering:     getBool(v, "AFIP_SYNC_NUMBERING", false),
		},
		Billing: BillingConfig{
			Enabled:              getBool(v, "BILLING_ENABLED", true),
			Cron:                 getString(v, "BILLING_CRON", "1 0 * * *"),
			OverdueCron:          getString(v, "BILLING_OVERDUE_CRON", "30 0 * * *"),
			Timezone:             getString(v, "BILLING_TIMEZONE", "America/Argentina/Buenos_Aires"),
			Workers:              getInt(v, "BILLING_WORKERS", 1),
			SubscriptionTimeout:  getDuration(v, "BILLING_SUBSCRIPTION_TIMEOUT", 60*time.Second),
			DueDays:              getInt(v, "BILLING_DUE_DAYS", 10),
			AdvancePolicy:        strings.ToLower(getString(v, "BILLING_ADVANCE_POLICY", AdvanceOnAuthorized)),
			DefaultPaymentMethod: getString(v, "BILLING_DEFAULT_PAYMENT_METHOD", "transferencia"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifica combinaciones que harían fallar el scheduler en runtime.
func (c *Config) Validate() error {
	switch c.Billing.AdvancePolicy {
	case AdvanceOnAuthorized, AdvanceOnAttempt:
	default:
		return fmt.Errorf("config: BILLING_ADVANCE_POLICY inválida %q (usar %s|%s)",
			c.Billing.AdvancePolicy, AdvanceOnAuthorized, AdvanceOnAttempt)
	}
	if c.Billing.Workers < 1 {
		return fmt.Errorf("config: BILLING_WORKERS debe ser >= 1")
	}
	if c.Billing.DueDays < 0 {
		return fmt.Errorf("config: BILLING_DUE_DAYS no puede ser negativo")
	}
	if _, err := c.Billing.Location(); err != nil {
		return fmt.Errorf("config: BILLING_TIMEZONE: %w", err)
	}
	for key, spec := range map[string]string{"BILLING_CRON": c.Billing.Cron, "BILLING_OVERDUE_CRON": c.Billing.OverdueCron} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("config: %s %q: %w", key, spec, err)
		}
	}
	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPasswordHash == "") {
		return fmt.Errorf("config: AUTH_ADMIN_EMAIL y AUTH_ADMIN_PASSWORD_HASH van juntos")
	}
	switch c.AFIP.Env {
	case "dev", "homo", "prod":
	default:
		return fmt.Errorf("config: AFIP_ENV desconocido %q (usar dev|homo|prod)", c.AFIP.Env)
	}
	return nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return def
}

func getDuration(v *viper.Viper, key string, def time.Duration) time.Duration {
	if v.IsSet(key) {
		if d := v.GetDuration(key); d > 0 {
			return d
		}
	}
	return def
}
