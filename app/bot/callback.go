package bot

import (
	"fmt"
	"strconv"
	"strings"
)

const ratePrefix = "rate"

func callbackData(itemID string, rating int) string {
	return fmt.Sprintf("%s:%s:%d", ratePrefix, itemID, rating)
}

// parseCallback decodes "rate:<id>:<±1>".
func parseCallback(data string) (string, int, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != ratePrefix || parts[1] == "" {
		return "", 0, fmt.Errorf("unknown callback data: %q", data)
	}

	rating, err := strconv.Atoi(parts[2])
	if err != nil || (rating != 1 && rating != -1) {
		return "", 0, fmt.Errorf("invalid rating in callback data: %q", data)
	}

	return parts[1], rating, nil
}
