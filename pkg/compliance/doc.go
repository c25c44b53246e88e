// Package compliance implements the pre-execution regulatory gate. The gate
// can unconditionally halt a request; unlike the enrichment layers it fails
// closed, because proceeding without a compliance verdict is itself a
// violation.
//
// Two implementations are provided: RuleGate evaluates a fixed set of
// regulation checks in process, and RegoGate delegates the verdict to
// embedded OPA policy modules.
package compliance
