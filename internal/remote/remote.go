// Package remote fetches module descriptors from remote repositories over
// HTTP, trying the repository's declared default branch first and then a
// fixed list of common branch names.
package remote

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/systemshift/modex/pkg/manifest"
	"github.com/systemshift/modex/pkg/result"
)

// FallbackBranches are tried, in order, after the declared default branch.
var FallbackBranches = []string{"main", "master", "trunk"}

// maxDescriptorSize bounds the fetched descriptor body.
const maxDescriptorSize = 1 << 20

// Client fetches remote descriptors. A single in-flight request per client
// is assumed; callers must not fetch concurrently.
type Client struct {
	http  *http.Client
	store *manifest.Store
	log   zerolog.Logger
}

// New creates a client. A nil httpClient gets a default with a timeout.
func New(httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		http:  httpClient,
		store: manifest.NewStore(),
		log:   log.With().Str("component", "remote").Logger(),
	}
}

// FetchDescriptor retrieves and validates the module descriptor published in
// repoURL. Branches that cannot be fetched are skipped; a descriptor that
// fetches but fails validation is returned as that validation failure.
func (c *Client) FetchDescriptor(repoURL, defaultBranch string) result.Result[manifest.Descriptor] {
	for _, branch := range branchOrder(defaultBranch) {
		url := rawDescriptorURL(repoURL, branch)
		data, err := c.fetch(url)
		if err != nil {
			c.log.Debug().Str("url", url).Err(err).Msg("descriptor fetch failed")
			continue
		}
		return c.store.Parse(data)
	}
	return result.Errf[manifest.Descriptor](result.ErrNotFound,
		"no descriptor found in %s", repoURL)
}

func (c *Client) fetch(url string) ([]byte, error) {
	resp, err := c.http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDescriptorSize))
}

func branchOrder(defaultBranch string) []string {
	branches := make([]string, 0, len(FallbackBranches)+1)
	if defaultBranch != "" {
		branches = append(branches, defaultBranch)
	}
	for _, b := range FallbackBranches {
		if b != defaultBranch {
			branches = append(branches, b)
		}
	}
	return branches
}

// rawDescriptorURL derives the raw-content URL of the descriptor for a
// repository URL and branch.
func rawDescriptorURL(repoURL, branch string) string {
	trimmed := strings.TrimSuffix(repoURL, ".git")
	if idx := strings.Index(trimmed, "github.com/"); idx >= 0 {
		path := trimmed[idx+len("github.com/"):]
		return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s", path, branch, manifest.Filename)
	}
	return fmt.Sprintf("%s/raw/%s/%s", trimmed, branch, manifest.Filename)
}
