package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lox/laketemp/internal/models"
)

var entitySlugRe = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Salzburg once accepted a custom download URL under these keys.
var deprecatedSalzburgKeys = []string{"custom_url", "url", "csv_url", "data_url", "source_url"}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("entityslug", func(fl validator.FieldLevel) bool {
		return entitySlugRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
		return IsHTTPURL(fl.Field().String())
	})
	return v
}

// IsHTTPURL accepts http(s) URLs with a host and without spaces.
func IsHTTPURL(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

var fieldMessages = map[string]string{
	"name":          "must be between 1 and 100 characters",
	"url":           "must start with http:// or https:// and must not contain spaces",
	"entity_id":     "use lowercase letters, numbers, and underscores only (max 64 chars)",
	"scan_interval": "must be between 15 and 86400 seconds",
	"timeout_hours": "must be between 1 and 336 hours (14 days)",
	"user_agent":    "must be at least 10 characters",
}

// Build validates a raw lake and converts it into a LakeConfig.
func Build(raw RawLake) (LakeConfig, error) {
	if err := validate.Struct(raw); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("invalid %s: %s", fe.Field(), fieldMessage(fe)))
			}
			return LakeConfig{}, errors.New(strings.Join(msgs, "; "))
		}
		return LakeConfig{}, err
	}

	src, err := buildSource(raw.Source)
	if err != nil {
		return LakeConfig{}, err
	}
	if src.Type == models.SourceGKDBayern && raw.URL == "" {
		return LakeConfig{}, fmt.Errorf("invalid url: required for source type %s", models.SourceGKDBayern)
	}

	return LakeConfig{
		Name:         raw.Name,
		URL:          raw.URL,
		EntityID:     raw.EntityID,
		ScanInterval: raw.ScanInterval,
		TimeoutHours: raw.TimeoutHours,
		UserAgent:    raw.UserAgent,
		Source:       src,
	}, nil
}

func fieldMessage(fe validator.FieldError) string {
	if msg, ok := fieldMessages[fe.Field()]; ok {
		return msg
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}

func buildSource(raw RawSource) (Source, error) {
	st, err := models.ParseSourceType(raw.Type)
	if err != nil {
		names := make([]string, len(models.SourceTypes))
		for i, t := range models.SourceTypes {
			names[i] = t.String()
		}
		return Source{}, fmt.Errorf("invalid source.type %q: expected one of: %s", raw.Type, strings.Join(names, ", "))
	}

	opts := raw.Options
	src := Source{Type: st}
	switch st {
	case models.SourceGKDBayern:
		if src.GKD.StationID, err = optString(opts, "station_id"); err != nil {
			return Source{}, err
		}
		if src.GKD.TableSelector, err = optString(opts, "table_selector"); err != nil {
			return Source{}, err
		}

	case models.SourceHydroOOE:
		if src.Hydro.StationID, err = optStringOrInt(opts, "station_id"); err != nil {
			return Source{}, err
		}
		if src.Hydro.APIBase, err = optString(opts, "api_base"); err != nil {
			return Source{}, err
		}
		if src.Hydro.Parameter, err = optString(opts, "parameter"); err != nil {
			return Source{}, err
		}
		if src.Hydro.Period, err = optString(opts, "period"); err != nil {
			return Source{}, err
		}

	case models.SourceSalzburgOGD:
		var present []string
		for _, k := range deprecatedSalzburgKeys {
			if _, ok := opts[k]; ok {
				present = append(present, k)
			}
		}
		if len(present) > 0 {
			sort.Strings(present)
			return Source{}, fmt.Errorf("invalid source.options.%s: deprecated custom URL option is no longer supported for %s", strings.Join(present, ", "), models.SourceSalzburgOGD)
		}
		if src.Salzburg.LakeName, err = optString(opts, "lake_name"); err != nil {
			return Source{}, err
		}
	}
	return src, nil
}

func optString(opts map[string]interface{}, key string) (string, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("invalid source.options.%s: expected string", key)
	}
	return s, nil
}

func optStringOrInt(opts map[string]interface{}, key string) (string, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	}
	return "", fmt.Errorf("invalid source.options.%s: expected string or int", key)
}
