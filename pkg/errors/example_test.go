package errors_test

import (
	"fmt"
	"os"

	"github.com/ajitpratap0/scholar/pkg/errors"
)

// Example demonstrates basic error creation with details.
func Example() {
	err := errors.New(errors.ErrorTypeSourceUnavailable, "registrar database unreachable").
		WithDetail("host", "localhost").
		WithDetail("port", 3306)

	fmt.Println(err.Error())

	// Output:
	// source_unavailable: registrar database unreachable
}

// ExampleWrap shows how a reader failure is typed.
func ExampleWrap() {
	err := errors.Wrap(os.ErrNotExist, errors.ErrorTypeSourceUnavailable, "payments extract missing").
		WithDetail("path", "data/payments.csv")

	if errors.IsType(err, errors.ErrorTypeSourceUnavailable) {
		fmt.Println("source is unavailable")
	}

	// Output:
	// source is unavailable
}

// ExampleAtStage demonstrates how the pipeline marks the failing stage.
func ExampleAtStage() {
	cause := errors.New(errors.ErrorTypeSchemaMismatch, "column email missing from students_db2")
	err := errors.AtStage(errors.StageConform, cause)

	stage, _ := errors.FailedStage(err)
	fmt.Println(stage)
	fmt.Println(errors.TypeOf(err))

	// Output:
	// conform
	// schema_mismatch
}
