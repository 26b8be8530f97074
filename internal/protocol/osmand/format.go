package osmand

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/oshokin/panic-button/internal/delivery"
	"github.com/oshokin/panic-button/internal/domain/alarm"
)

var errEmptyBaseURL = errors.New("server url is empty")

// Format appends the position to baseURL as query parameters and returns a
// POST request without a body. alarmType is omitted when empty.
func Format(baseURL string, pos alarm.Position, alarmType string) (delivery.Request, error) {
	if baseURL == "" {
		return delivery.Request{}, errEmptyBaseURL
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return delivery.Request{}, fmt.Errorf("parse server url: %w", err)
	}

	query := u.Query()
	query.Set("id", pos.DeviceID)
	query.Set("timestamp", strconv.FormatInt(pos.Time.Unix(), 10))
	query.Set("lat", formatFloat(pos.Latitude))
	query.Set("lon", formatFloat(pos.Longitude))
	query.Set("speed", formatFloat(pos.Speed))
	query.Set("bearing", formatFloat(pos.Course))
	query.Set("altitude", formatFloat(pos.Altitude))
	query.Set("accuracy", formatFloat(pos.Accuracy))
	query.Set("batt", formatFloat(pos.Battery.Level))

	if pos.Battery.Charging {
		query.Set("charge", "true")
	}

	if pos.Mock {
		query.Set("mock", "true")
	}

	if alarmType != "" {
		query.Set("alarm", alarmType)
	}

	u.RawQuery = query.Encode()

	return delivery.NewRequest(http.MethodPost, u.String(), nil, nil), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
