package fetch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"civimetre/models"
)

type promiseSeed struct {
	Promises []models.Promise `yaml:"promises"`
}

// LoadPromiseSeed reads the promise seed file. Seeding is the only way
// promises enter the system; re-seeding upserts by id.
func LoadPromiseSeed(path string) ([]models.Promise, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}

	var seed promiseSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	for i := range seed.Promises {
		p := &seed.Promises[i]
		if p.ID == "" {
			return nil, fmt.Errorf("seed entry %d: missing id", i)
		}
		if p.Status == "" {
			p.Status = models.PromiseNotStarted
		}
		if !models.ValidPromiseStatus(p.Status) {
			return nil, fmt.Errorf("promise %s: invalid status %q", p.ID, p.Status)
		}
	}

	return seed.Promises, nil
}
