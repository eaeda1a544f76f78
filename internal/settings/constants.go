package settings

import "time"

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the UI site name.
	SiteNameKey = "site_name"
	// AlipayAppIDKey holds the gateway application id.
	AlipayAppIDKey = "alipay_appid"
	// AlipayPrivateKeyKey holds the merchant RSA private key (PKCS#1 or PKCS#8, bare or PEM).
	AlipayPrivateKeyKey = "alipay_private_key"
	// AlipayPublicKeyKey holds the gateway RSA public key used to verify callbacks.
	AlipayPublicKeyKey = "alipay_public_key"
	// AlipayEnabledKey toggles checkout through its is_enabled column.
	AlipayEnabledKey = "alipay_enabled"
	// DefaultCacheTTL bounds how stale a cached snapshot may be.
	DefaultCacheTTL = 30 * time.Second
)

// SecretKeys lists settings whose values are masked on read.
var SecretKeys = map[string]bool{
	AlipayPrivateKeyKey: true,
	AlipayPublicKeyKey:  true,
}

// EditableKeys lists the settings administrators may change.
var EditableKeys = map[string]bool{
	SiteNameKey:         true,
	AlipayAppIDKey:      true,
	AlipayPrivateKeyKey: true,
	AlipayPublicKeyKey:  true,
	AlipayEnabledKey:    true,
}
