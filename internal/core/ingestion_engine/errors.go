package ingestion_engine

import "errors"

var (
	// ErrEmptyDocument means chunking produced zero chunks; the attempt is
	// fatal and no embedding call is made.
	ErrEmptyDocument = errors.New("document produced no chunks")

	// ErrAlreadyProcessing rejects a reprocess request while a document is
	// mid-processing; nothing changes state.
	ErrAlreadyProcessing = errors.New("document is already processing")

	// ErrDocumentNotFound means the document row does not exist.
	ErrDocumentNotFound = errors.New("document not found")
)
