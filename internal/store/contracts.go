package store

import (
	"github.com/gzhole/migclean/internal/audit"
	"github.com/gzhole/migclean/internal/execution"
	"github.com/gzhole/migclean/internal/inventory"
	"github.com/gzhole/migclean/internal/plan"
	"github.com/gzhole/migclean/internal/proposal"
	"github.com/gzhole/migclean/internal/session"
)

var (
	_ session.Repository           = (*Store)(nil)
	_ session.FactRepository       = (*Store)(nil)
	_ inventory.SnapshotRepository = (*Store)(nil)
	_ plan.Repository              = (*Store)(nil)
	_ proposal.Repository          = (*Store)(nil)
	_ execution.Repository         = (*Store)(nil)
	_ audit.Repository             = (*Store)(nil)
)
