package importer

import "emxloader/pkg/domain"

// Job is one import request. It is consumed once: the report and ledger
// accumulate while the writer runs.
type Job struct {
	Source   domain.Source
	MetaData domain.ParsedMetaData
	Action   domain.DatabaseAction
	Report   *Report
	Ledger   *Ledger
}

// NewJob returns a job with an empty report and ledger.
func NewJob(source domain.Source, meta domain.ParsedMetaData, action domain.DatabaseAction) *Job {
	return &Job{
		Source:   source,
		MetaData: meta,
		Action:   action,
		Report:   NewReport(),
		Ledger:   NewLedger(),
	}
}
