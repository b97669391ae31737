package service

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"awb-agent/internal/awb"
	"awb-agent/internal/config"
	"awb-agent/internal/model"
	"awb-agent/internal/storage"
	"awb-agent/internal/ws"
)

var ErrUnknownStream = errors.New("unknown stream")

const outputCeiling = 0xFF

type StepRequest struct {
	StreamID string
	CameraID string
	Samples  []awb.Color
	// Gain replaces the stored gain for this call when set.
	Gain *awb.Gain
}

// WhiteBalanceService drives the AWB controller for many independent
// streams. Calls for the same stream are serialised; different streams run
// concurrently.
type WhiteBalanceService struct {
	cfg     config.Config
	ctrl    *awb.Controller
	store   *storage.Store
	hub     *ws.Hub
	cameras *ws.CameraHub

	mu    sync.Mutex
	locks map[string]*streamLock
}

// streamLock is dropped from the map once no caller holds or waits on it.
type streamLock struct {
	mu   sync.Mutex
	refs int
}

func NewWhiteBalanceService(cfg config.Config, store *storage.Store, hub *ws.Hub, cameras *ws.CameraHub) (*WhiteBalanceService, error) {
	ctrl, err := awb.NewController(cfg.AWBParams())
	if err != nil {
		return nil, err
	}
	return &WhiteBalanceService{
		cfg:     cfg,
		ctrl:    ctrl,
		store:   store,
		hub:     hub,
		cameras: cameras,
		locks:   map[string]*streamLock{},
	}, nil
}

func (s *WhiteBalanceService) Params() awb.Params { return s.ctrl.Params() }

func (s *WhiteBalanceService) lockStream(streamID string) func() {
	s.mu.Lock()
	l, ok := s.locks[streamID]
	if !ok {
		l = &streamLock{}
		s.locks[streamID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, streamID)
		}
		s.mu.Unlock()
	}
}

// loadOrNew reports whether the stream already existed in the store.
func (s *WhiteBalanceService) loadOrNew(streamID string) (model.GainState, bool, error) {
	st, err := s.store.GetStream(streamID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.GainState{
			StreamID: streamID,
			Gain:     model.FromGain(awb.UniformGain(s.ctrl.Params().Identity)),
		}, false, nil
	}
	return st, err == nil, err
}

func matrixFor(st model.GainState) awb.ColorMatrix {
	if st.ColorMatrix == nil {
		return awb.IdentityMatrix()
	}
	return awb.NewColorMatrix(*st.ColorMatrix)
}

// Step runs one controller iteration against the stream's stored gain and
// persists the result. An empty StreamID starts a new stream.
func (s *WhiteBalanceService) Step(req StepRequest) (model.StepReport, error) {
	streamID := strings.TrimSpace(req.StreamID)
	if streamID == "" {
		streamID = uuid.NewString()
	}
	unlock := s.lockStream(streamID)
	defer unlock()

	st, existed, err := s.loadOrNew(streamID)
	if err != nil {
		return model.StepReport{}, fmt.Errorf("load stream %s: %w", streamID, err)
	}
	if req.CameraID != "" {
		st.CameraID = req.CameraID
	}

	gain := st.Gain.Gain()
	if req.Gain != nil {
		gain = *req.Gain
	}
	matrix := matrixFor(st)
	res := s.ctrl.Run(req.Samples, matrix, &gain)

	if res.Outcome != awb.NoSamples && res.Outcome != awb.InvalidGain {
		st.Steps++
	}
	st.Gain = model.FromGain(gain)
	st.Settled = res.Settled()
	st.LastOutcome = res.Outcome.String()
	st.UpdatedAt = time.Now().UnixMilli()
	// An empty frame on an unknown stream leaves nothing to remember.
	if existed || res.Outcome != awb.NoSamples {
		if err := s.store.PutStream(st); err != nil {
			return model.StepReport{}, fmt.Errorf("save stream %s: %w", streamID, err)
		}
	}

	report := newStepReport(st, res, matrix)
	log.Printf("awb step: stream=%s outcome=%s gain=%v->%v samples=%d neargray=%.3f",
		streamID, report.Outcome, res.Before, res.After, len(req.Samples), res.Stats.NearGrayFraction)

	now := time.Now().UnixMilli()
	s.hub.BroadcastEvent(model.Event{Type: "awb.stepped", Payload: report, CreatedAt: now})
	if report.Settled {
		s.hub.BroadcastEvent(model.Event{Type: "awb.settled", Payload: report, CreatedAt: now})
	}
	if res.Changed() && st.CameraID != "" {
		if err := s.pushGain(st, now); err != nil {
			log.Printf("awb push gain: stream=%s camera=%s err=%v", streamID, st.CameraID, err)
		}
	}
	return report, nil
}

func newStepReport(st model.GainState, res awb.Result, matrix awb.ColorMatrix) model.StepReport {
	return model.StepReport{
		StreamID:         st.StreamID,
		CameraID:         st.CameraID,
		Outcome:          res.Outcome.String(),
		Settled:          res.Settled(),
		GainBefore:       model.FromGain(res.Before),
		GainAfter:        model.FromGain(res.After),
		Representative:   model.FromColor(res.Stats.Representative),
		Corrected:        model.FromColor(matrix.Apply(res.Stats.Representative)),
		SampleCount:      res.Stats.Count,
		NearGrayCount:    res.Stats.NearGrayCount,
		NearGrayFraction: res.Stats.NearGrayFraction,
		UsedNearGray:     res.Stats.UsedNearGray,
		Steps:            st.Steps,
		CreatedAt:        time.Now().UnixMilli(),
	}
}

func (s *WhiteBalanceService) pushGain(st model.GainState, now int64) error {
	encoding, payload := EncodeGain(st.Gain.Gain(), s.ctrl.Params().Max)
	env := model.HardwareEnvelope{
		CameraID:   st.CameraID,
		StreamID:   st.StreamID,
		Encoding:   encoding,
		PayloadB64: base64.StdEncoding.EncodeToString(payload),
		Gain:       st.Gain,
		CreatedAt:  now,
	}
	if err := s.store.SetHardwareEnvelope(env); err != nil {
		return err
	}
	s.cameras.PushEnvelope(env)
	return nil
}

func (s *WhiteBalanceService) Stream(streamID string) (model.GainState, error) {
	st, err := s.store.GetStream(streamID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.GainState{}, fmt.Errorf("%w: %s", ErrUnknownStream, streamID)
	}
	return st, err
}

func (s *WhiteBalanceService) Streams() []model.GainState {
	return s.store.ListStreams()
}

func (s *WhiteBalanceService) Reset(streamID string) error {
	unlock := s.lockStream(streamID)
	defer unlock()
	err := s.store.DeleteStream(streamID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownStream, streamID)
	}
	if err != nil {
		return err
	}
	s.hub.BroadcastEvent(model.Event{Type: "awb.reset", Payload: map[string]string{"stream_id": streamID}, CreatedAt: time.Now().UnixMilli()})
	return nil
}

func (s *WhiteBalanceService) SetColorMatrix(streamID string, values [9]float64) (model.GainState, error) {
	if strings.TrimSpace(streamID) == "" {
		return model.GainState{}, errors.New("stream id required")
	}
	unlock := s.lockStream(streamID)
	defer unlock()
	st, _, err := s.loadOrNew(streamID)
	if err != nil {
		return model.GainState{}, err
	}
	st.ColorMatrix = &values
	st.UpdatedAt = time.Now().UnixMilli()
	if err := s.store.PutStream(st); err != nil {
		return model.GainState{}, err
	}
	return st, nil
}

// Converge drives ctrl against a static scene, applying each new gain to the
// raw samples before the next step. It stops when the controller settles,
// refuses to step, or maxSteps is reached, and reports the final gain.
func Converge(ctrl *awb.Controller, samples []awb.Color, start awb.Gain, maxSteps int, onStep func(step int, res awb.Result)) (awb.Gain, bool) {
	identity := ctrl.Params().Identity
	matrix := awb.IdentityMatrix()
	gain := start
	for i := 1; i <= maxSteps; i++ {
		applied := ApplyGain(samples, gain, identity, outputCeiling)
		res := ctrl.Run(applied, matrix, &gain)
		if onStep != nil {
			onStep(i, res)
		}
		if res.Settled() {
			return gain, true
		}
		if res.Outcome == awb.NoSamples || res.Outcome == awb.InvalidGain {
			break
		}
	}
	return gain, false
}

// Simulate runs Converge without persisting anything.
func (s *WhiteBalanceService) Simulate(samples []awb.Color, start awb.Gain, maxSteps int) model.SimulationRun {
	if maxSteps <= 0 || maxSteps > s.cfg.SimulateMaxSteps {
		maxSteps = s.cfg.SimulateMaxSteps
	}
	run := model.SimulationRun{RunID: uuid.NewString()}
	st := model.GainState{StreamID: run.RunID}
	matrix := awb.IdentityMatrix()

	final, settled := Converge(s.ctrl, samples, start, maxSteps, func(step int, res awb.Result) {
		st.Steps = step
		run.Steps = append(run.Steps, newStepReport(st, res, matrix))
	})
	run.Final = model.FromGain(final)
	run.Settled = settled
	return run
}
