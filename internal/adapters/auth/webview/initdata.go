package webview

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	initDataKey = "tgWebAppData="
	versionKey  = "&tgWebAppVersion"
	BotUsername = "pocketfi_bot"
	WebAppURL   = "https://botui.pocketfi.org/mining/"
)

var ErrInvalidInitData = errors.New("invalid web app init data")

var requiredInitFields = []string{"auth_date", "hash"}

// ExtractInitData accepts either the raw init data or the full web-view URL
// Telegram returns, whose fragment carries tgWebAppData.
func ExtractInitData(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidInitData)
	}

	if _, after, ok := strings.Cut(value, initDataKey); ok {
		encoded, _, _ := strings.Cut(after, versionKey)
		decoded, err := url.PathUnescape(encoded)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidInitData, err)
		}
		value = decoded
	}

	// ParseQuery keeps every pair it could read, so only missing fields fail.
	params, _ := url.ParseQuery(value)
	for _, field := range requiredInitFields {
		if params.Get(field) == "" {
			return "", fmt.Errorf("%w: missing %s", ErrInvalidInitData, field)
		}
	}

	return value, nil
}
