package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/dmpsync/internal/ingest"
	"github.com/roach88/dmpsync/internal/model"
	"github.com/roach88/dmpsync/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Steps    []StepResult // Step outcomes for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Steps) > 0 {
		fmt.Fprintf(&buf, "\nSteps:\n")
		for _, s := range e.Steps {
			fmt.Fprintf(&buf, "  [%d] %s %s", s.Index, s.Provenance, s.Outcome)
			if s.Code != "" {
				fmt.Fprintf(&buf, " %s", s.Code)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// AssertionContext provides what assertions need beyond the Result.
type AssertionContext struct {
	Store    *store.Store
	Ingester *ingest.Ingester
	Ctx      context.Context
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertRowCount:
		return assertRowCount(result, a)
	case AssertOutcomeCount:
		return assertOutcomeCount(result, a)
	}

	if actx == nil || actx.Store == nil {
		return fmt.Errorf("%s assertion requires a store", a.Type)
	}
	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	switch a.Type {
	case AssertFinalState:
		return assertFinalState(ctx, actx.Store, a)
	case AssertIdentifierCount:
		return assertIdentifierCount(ctx, actx.Store, a)
	case AssertReplayStable:
		if actx.Ingester == nil {
			return fmt.Errorf("replay_stable assertion requires an ingester")
		}
		return assertReplayStable(ctx, actx.Ingester, result)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertRowCount checks the recorded row count of a table. Tables outside
// the entity set are reported as unknown.
func assertRowCount(result *Result, a Assertion) error {
	n, ok := result.Counts[a.Table]
	if !ok {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("counted table %s", a.Table),
			Actual:   "table is not counted",
			Steps:    result.Steps,
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s", a.Count, a.Table),
			Actual:   fmt.Sprintf("%d rows", n),
			Steps:    result.Steps,
		}
	}
	return nil
}

// assertOutcomeCount checks how many steps ended with an outcome.
func assertOutcomeCount(result *Result, a Assertion) error {
	if n := result.Outcomes()[a.Outcome]; n != a.Count {
		return &AssertionError{
			Type:     AssertOutcomeCount,
			Expected: fmt.Sprintf("%d %s steps", a.Count, a.Outcome),
			Actual:   fmt.Sprintf("%d %s steps", n, a.Outcome),
			Steps:    result.Steps,
		}
	}
	return nil
}

// assertIdentifierCount checks how many stored identifiers carry a
// category and value.
func assertIdentifierCount(ctx context.Context, st *store.Store, a Assertion) error {
	found, err := st.FindIdentifiers(ctx, model.Category(a.Category), a.Value)
	if err != nil {
		return fmt.Errorf("find identifiers: %w", err)
	}
	if len(found) != a.Count {
		return &AssertionError{
			Type:     AssertIdentifierCount,
			Expected: fmt.Sprintf("%d identifiers %s %s", a.Count, a.Category, a.Value),
			Actual:   fmt.Sprintf("%d identifiers", len(found)),
		}
	}
	return nil
}

// assertReplayStable replays the audit log and checks that no table grew or
// shrank.
func assertReplayStable(ctx context.Context, ing *ingest.Ingester, result *Result) error {
	report, err := ing.Replay(ctx)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if !report.Stable() {
		actual := report.String()
		if len(report.Failed) > 0 {
			actual += fmt.Sprintf(", first failure: %s", report.Failed[0].Error)
		}
		return &AssertionError{
			Type:     AssertReplayStable,
			Expected: fmt.Sprintf("row counts %v", report.Before),
			Actual:   fmt.Sprintf("%s, row counts %v", actual, report.After),
			Steps:    result.Steps,
		}
	}
	return nil
}

// assertFinalState checks that exactly one row of the table matches Where
// and carries the expected values (subset semantics).
//
// Table and column names are validated against a whitelist pattern since
// identifiers cannot be parameterized.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// More than one match makes the assertion ambiguous
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	keys := sortedKeys(assertion.Expect)
	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}
	return nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are sorted
// for determinism; values are never interpolated.
func buildWhereClause(where map[string]interface{}) (string, []interface{}, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		if where[key] == nil {
			clauses = append(clauses, key+" IS NULL")
			continue
		}
		clauses = append(clauses, key+" = ?")
		args = append(args, toSQLValue(where[key]))
	}
	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML-decoded value to a SQL-compatible value.
func toSQLValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string, int, int64, float64:
		return val
	case bool:
		// Booleans are stored as integers
		if val {
			return 1
		}
		return 0
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stateValuesEqual compares an expected YAML value with a scanned column.
// SQLite returns TEXT as string or []byte and INTEGER as int64.
func stateValuesEqual(expected, actual interface{}) bool {
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch exp := expected.(type) {
	case string:
		actualStr, ok := actual.(string)
		return ok && exp == actualStr
	case int:
		return intEqual(int64(exp), actual)
	case int64:
		return intEqual(exp, actual)
	case float64:
		switch a := actual.(type) {
		case float64:
			return exp == a
		case int64:
			return exp == float64(a)
		}
		return false
	case bool:
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

func intEqual(exp int64, actual interface{}) bool {
	switch a := actual.(type) {
	case int64:
		return exp == a
	case int:
		return exp == int64(a)
	}
	return false
}
