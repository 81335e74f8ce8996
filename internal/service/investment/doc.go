// Package investment implements the investment-submission workflow.
//
// A Desk bundles the three pieces one dashboard session owns: the Form that
// holds the draft, the Presenter that shows transient feedback, and the
// Workflow state machine that validates the draft, resolves the current
// identity and persists a payment record through an injected SessionProvider.
//
// The service layer contains pure business logic and depends on the
// interfaces defined in repository.go. It never imports net/http or
// database/sql directly.
package investment
