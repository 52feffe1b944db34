package hublife

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// newServerName builds a per-process identifier used as the originating serverName in
// GroupCommand frames and as the suffix of this server's ack channel. Combining the
// host label with a fresh random suffix keeps it unique with overwhelming probability
// even when several processes of the same hub type run on one host.
func newServerName() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("reading hostname failed: %w", err)
	}
	return fmt.Sprintf("%s-%s", host, uuid.New().String()), nil
}
