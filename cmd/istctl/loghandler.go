package main

import (
	"github.com/dutow/galera/internal/ist"
	"github.com/dutow/galera/log"
)

// logHandler is a demo applyhandler.Handler that just logs what it would
// have applied, standing in for the real storage-engine apply pipeline.
type logHandler struct {
	logger log.Log
}

func (h logHandler) IstTrx(action ist.WriteSetAction, mustApply, preload bool) error {
	h.logger.Info("apply write-set",
		log.SeqNo("seqno", int64(action.SeqNoG)), log.Bool("must_apply", mustApply), log.Bool("preload", preload))
	return nil
}

func (h logHandler) IstCC(action ist.WriteSetAction, mustApply, preload bool) error {
	h.logger.Info("apply config change",
		log.SeqNo("seqno", int64(action.SeqNoG)), log.Bool("must_apply", mustApply), log.Bool("preload", preload))
	return nil
}

func (h logHandler) IstEnd(code int) {
	h.logger.Info("session ended", log.Int("code", code))
}
