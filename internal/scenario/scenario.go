// Package scenario runs scripted ledger sessions from YAML files and
// records a human readable trace of every step.
//
// A scenario file looks like:
//
//	name: basic
//	decimals: 18
//	rate: "2"
//	participants:
//	  - name: alice
//	    mint: "1000"
//	steps:
//	  - enter: {owner: alice, amount: "10", executions: 3}
//	  - advance: 1
//	  - execute: {}
//	  - execute: {error: already_ran_this_period}
//	  - expect: {allocation: 0, bought: "20", unsold: "20"}
//
// Amounts are decimal strings in whole token units. The clock starts at
// period 0, so an advance is needed before the first execution.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Default asset symbols used when a scenario names none.
const (
	DefaultSellSymbol = "TKN-A"
	DefaultBuySymbol  = "TKN-B"
)

// ErrInvalidScenario is returned for scenarios that cannot be run.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is a scripted ledger session.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Decimals of both assets. Defaults to 18.
	Decimals uint8 `yaml:"decimals"`

	// Rate is the venue conversion rate, units of buy asset per sell unit
	Rate string `yaml:"rate"`

	SellSymbol string `yaml:"sell_symbol,omitempty"`
	BuySymbol  string `yaml:"buy_symbol,omitempty"`

	Participants []Participant `yaml:"participants"`
	Steps        []Step        `yaml:"steps"`
}

// Participant is an address funded with the sell asset before the first step.
type Participant struct {
	Name string `yaml:"name"`
	Mint string `yaml:"mint"`
}

// Step is one scripted action. Exactly one field is set.
type Step struct {
	Enter   *EnterStep   `yaml:"enter,omitempty"`
	Execute *ExecuteStep `yaml:"execute,omitempty"`
	Exit    *ExitStep    `yaml:"exit,omitempty"`
	Advance uint64       `yaml:"advance,omitempty"`
	Rate    string       `yaml:"rate,omitempty"`
	Expect  *Expect      `yaml:"expect,omitempty"`
}

// EnterStep creates an allocation. Error, when set, is the error code the
// step must fail with.
type EnterStep struct {
	Owner      string `yaml:"owner"`
	Amount     string `yaml:"amount"`
	Executions uint64 `yaml:"executions"`
	Error      string `yaml:"error,omitempty"`
}

// ExecuteStep runs one execution.
type ExecuteStep struct {
	Error string `yaml:"error,omitempty"`
}

// ExitStep retires an allocation on behalf of owner.
type ExitStep struct {
	Owner string `yaml:"owner"`
	ID    uint64 `yaml:"id"`
	Error string `yaml:"error,omitempty"`
}

// Expect asserts balances. Only the fields that are set are checked.
type Expect struct {
	Allocation *uint64 `yaml:"allocation,omitempty"`
	Bought     *string `yaml:"bought,omitempty"`
	Unsold     *string `yaml:"unsold,omitempty"`

	Holder string  `yaml:"holder,omitempty"`
	Sell   *string `yaml:"sell,omitempty"`
	Buy    *string `yaml:"buy,omitempty"`

	Aggregate *string `yaml:"aggregate,omitempty"`
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes a scenario and validates it. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate fills defaults and checks the scenario's structure.
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScenario)
	}
	if sc.Decimals == 0 {
		sc.Decimals = 18
	}
	if sc.SellSymbol == "" {
		sc.SellSymbol = DefaultSellSymbol
	}
	if sc.BuySymbol == "" {
		sc.BuySymbol = DefaultBuySymbol
	}
	if sc.SellSymbol == sc.BuySymbol {
		return fmt.Errorf("%w: sell and buy symbols must differ", ErrInvalidScenario)
	}
	if _, err := parseRate(sc.Rate); err != nil {
		return err
	}

	seen := make(map[string]bool, len(sc.Participants))
	for _, p := range sc.Participants {
		if p.Name == "" {
			return fmt.Errorf("%w: participant without a name", ErrInvalidScenario)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: participant %q listed twice", ErrInvalidScenario, p.Name)
		}
		seen[p.Name] = true
	}

	for i, st := range sc.Steps {
		if n := st.kinds(); n != 1 {
			return fmt.Errorf("%w: step %d sets %d actions, want 1", ErrInvalidScenario, i+1, n)
		}
		if st.Rate != "" {
			if _, err := parseRate(st.Rate); err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
		}
		if e := st.Expect; e != nil {
			if e.Allocation == nil && e.Holder == "" && e.Aggregate == nil {
				return fmt.Errorf("%w: step %d expects nothing", ErrInvalidScenario, i+1)
			}
		}
	}
	return nil
}

func (st Step) kinds() int {
	n := 0
	for _, set := range []bool{
		st.Enter != nil,
		st.Execute != nil,
		st.Exit != nil,
		st.Advance > 0,
		st.Rate != "",
		st.Expect != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

func parseRate(s string) (decimal.Decimal, error) {
	r, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: rate %q: %v", ErrInvalidScenario, s, err)
	}
	if !r.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: rate must be positive, got %s", ErrInvalidScenario, r)
	}
	return r, nil
}
