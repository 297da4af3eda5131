package config

import (
	"fmt"
	"strconv"
	"strings"
)

// LookupFunc reads one environment-style key. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Environment overrides. The first set key of each group wins.
var (
	EnvToken  = []string{"CW_TELEGRAM_TOKEN", "BOT_TOKEN"}
	EnvChatID = []string{"CW_TELEGRAM_CHAT_ID", "CHAT_ID"}
	// EnvLogLevel pins logging.level across reloads.
	EnvLogLevel = []string{"CW_LOG_LEVEL"}
)

func firstSet(lookup LookupFunc, keys []string) (string, string, bool) {
	for _, k := range keys {
		if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
			return k, strings.TrimSpace(v), true
		}
	}
	return "", "", false
}

// ApplyEnv overlays secrets from the environment onto cfg so they can stay
// out of the config file.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if cfg == nil || lookup == nil {
		return nil
	}
	if _, v, ok := firstSet(lookup, EnvToken); ok {
		cfg.Telegram.Token = v
	}
	if k, v, ok := firstSet(lookup, EnvChatID); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", k, v)
		}
		cfg.Telegram.ChatID = ChatID(n)
	}
	if _, v, ok := firstSet(lookup, EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	return nil
}
