package enums

import "fmt"

// SettingScope is the resolution tier of a fee or commission config.
type SettingScope string

const (
	ScopeGlobal   SettingScope = "global"
	ScopeCity     SettingScope = "city"
	ScopeMerchant SettingScope = "merchant"
)

var validSettingScopes = []SettingScope{
	ScopeGlobal,
	ScopeCity,
	ScopeMerchant,
}

// String implements fmt.Stringer.
func (v SettingScope) String() string {
	return string(v)
}

// IsValid reports whether the value is a known SettingScope.
func (v SettingScope) IsValid() bool {
	for _, candidate := range validSettingScopes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseSettingScope converts raw input into a SettingScope.
func ParseSettingScope(value string) (SettingScope, error) {
	for _, candidate := range validSettingScopes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid setting scope %q", value)
}
