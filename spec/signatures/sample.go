// SPDX-License-Identifier: ISC

package signatures

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/todd-io/todd/sample"
)

const (
	// sampleMarkerFile is the canned signature file whose presence marks
	// the sample data as fully arrived.
	sampleMarkerFile   = "sample_signatures.txt"
	sampleWatchTimeout = 30 * time.Second
)

// newSampleObtainer wraps the directory validator in the watching
// decorator, so a sample download finishing out-of-band is noticed
// instead of re-fetched.
func newSampleObtainer() sample.Obtainer {
	return sample.NewWatchingObtainer(sampleObtainer{}, sampleMarkerFile, sampleWatchTimeout)
}

// sampleObtainer checks only that cacheDir exists and is a directory; it
// does not inspect the signature files inside it. Fetching sample data
// is an injected external collaborator, out of scope for this engine.
type sampleObtainer struct{}

func (sampleObtainer) Obtain(ctx context.Context, cacheDir string) (string, error) {
	info, err := os.Stat(cacheDir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("signatures: sample data not present at %s: %w", cacheDir, err)
	}
	return cacheDir, nil
}
