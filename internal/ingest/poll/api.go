package poll

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nocalert/core/internal/models"
	"github.com/nocalert/core/internal/parseengine"
)

const apiEndpointTimeout = 10 * time.Second

// pollAPI implements method=api_poll from §4.7: iterate endpoints in
// order, stop after the first unreachable one (the device itself is
// down, further endpoint calls would only repeat the same failure).
func (d *Driver) pollAPI(ctx context.Context, target *models.Target, addon *models.Manifest) {
	if addon.APIPoll == nil {
		return
	}

	creds, err := d.creds.Resolve(ctx, target.IPAddress, addon.APIPoll.AuthType)
	if err != nil {
		log.Warn().Err(err).Str("target_id", target.ID).Msg("poll: credential resolution failed")
		creds = nil
	}

	client := &http.Client{Timeout: apiEndpointTimeout}

	for _, ep := range addon.APIPoll.Endpoints {
		url := buildURL(addon.APIPoll.BaseURLTemplate, target.IPAddress, ep.Path)

		reqCtx, cancel := context.WithTimeout(ctx, apiEndpointTimeout)
		req, err := http.NewRequestWithContext(reqCtx, methodOrGet(ep.Method), url, nil)
		if err == nil {
			applyCredentials(req, creds)
		}

		var body []byte
		var reqErr error
		if err != nil {
			reqErr = err
		} else {
			resp, doErr := client.Do(req)
			if doErr != nil {
				reqErr = doErr
			} else {
				body, reqErr = io.ReadAll(resp.Body)
				resp.Body.Close()
				if reqErr == nil && resp.StatusCode >= 400 {
					reqErr = fmt.Errorf("status %d", resp.StatusCode)
				}
			}
		}
		cancel()

		if reqErr != nil {
			if ep.AlertOnFailure != "" {
				parsed := &models.ParsedAlert{
					AddonID:   addon.ID,
					AlertType: ep.AlertOnFailure,
					DeviceIP:  target.IPAddress,
					Message:   fmt.Sprintf("Failed to reach %s: %s", url, reqErr),
				}
				if _, err := d.engine.Process(ctx, parsed, addon); err != nil {
					log.Error().Err(err).Str("target_id", target.ID).Msg("poll: engine process failed")
				}
			}
			return // device unreachable: stop iterating further endpoints
		}

		if ep.AlertOnFailure != "" {
			if _, err := d.engine.AutoResolve(ctx, addon.ID, ep.AlertOnFailure, target.IPAddress); err != nil {
				log.Warn().Err(err).Str("target_id", target.ID).Msg("poll: auto-resolve failed")
			}
		}

		if len(body) == 0 {
			continue
		}
		parsed, err := parseengine.Parse(body, addon, addon.ID)
		if err != nil {
			log.Warn().Err(err).Str("target_id", target.ID).Msg("poll: parse error")
			continue
		}
		if parsed == nil {
			continue
		}
		if parsed.DeviceIP == "" {
			parsed.DeviceIP = target.IPAddress
		}
		if _, err := d.engine.Process(ctx, parsed, addon); err != nil {
			log.Error().Err(err).Str("target_id", target.ID).Msg("poll: engine process failed")
		}
	}
}

func buildURL(template, ip, path string) string {
	url := strings.ReplaceAll(template, "{ip}", ip)
	if path == "" {
		return url
	}
	return strings.TrimSuffix(url, "/") + "/" + strings.TrimPrefix(path, "/")
}

func methodOrGet(m string) string {
	if m == "" {
		return http.MethodGet
	}
	return m
}

func applyCredentials(req *http.Request, creds map[string]string) {
	if creds == nil {
		return
	}
	if user, ok := creds["username"]; ok {
		req.SetBasicAuth(user, creds["password"])
		return
	}
	if token, ok := creds["token"]; ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
