package main

import (
	"context"
	"fmt"
	"time"

	"go.einride.tech/can"
	"golang.org/x/sync/errgroup"

	control "dbw-core/twist_controller"
	"dbw-core/utils"
)

// Frame and signal names expected in the CAN map
const (
	frameTwistCmd     = "TWIST_CMD"
	frameDBWStatus    = "DBW_STATUS"
	frameVehicleState = "VEHICLE_STATE_1"

	sigLinearVelocity  = "linear_velocity_mps"
	sigAngularVelocity = "angular_velocity_rps"
	sigDBWEnabled      = "dbw_enabled"
	sigVehicleSpeed    = "vehicle_speed_mps"
	sigThrottle        = "throttle_cmd"
	sigBrake           = "brake_cmd_nm"
	sigSteer           = "steer_cmd_rad"
)

const defaultStaleAfter = 500 * time.Millisecond

type RunnerConfig struct {
	Interface   string
	MapPath     string
	VehiclePath string
	FrameName   string
	StaleAfter  time.Duration
}

type Runner struct {
	cfg    RunnerConfig
	log    *utils.Logger
	rxLog  *utils.Logger
	cmap   *utils.CANMap
	writer utils.CANWriter
	reader utils.CANReader
	fd     *utils.FrameDef // transmitted command frame
	ctrl   *control.Controller
	stats  *TrackingStats

	// RX frame IDs
	twistID  uint32
	statusID uint32
	speedID  uint32

	// Latest inputs; only touched by the control goroutine
	in      inputs
	stale   bool
	lastCmd control.ActuatorCommand
	sent    uint64
}

// inputs holds the most recent value of every RX signal and when it arrived
type inputs struct {
	linear, angular float64
	twistAt         time.Time

	dbwEnabled bool
	statusAt   time.Time

	speed   float64
	speedAt time.Time
}

// rxMessage is one decoded RX frame handed from the receive loop to the control loop
type rxMessage struct {
	id     uint32
	values map[string]float64
	at     time.Time
}

func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	cmap, err := utils.LoadCANMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}

	vc, err := LoadVehicleConfig(cfg.VehiclePath)
	if err != nil {
		return nil, fmt.Errorf("load vehicle config: %w", err)
	}

	ctrl, err := control.NewController(vc.Vehicle, vc.Tuning, control.SystemClock{})
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	writer, err := utils.NewSocketCANWriter(ctx, cfg.Interface)
	if err != nil {
		return nil, err
	}

	reader, err := utils.NewSocketCANReader(ctx, cfg.Interface)
	if err != nil {
		writer.Close()
		return nil, err
	}

	r, err := newRunner(cfg, cmap, ctrl, reader, writer, log)
	if err != nil {
		reader.Close()
		writer.Close()
		return nil, err
	}

	log.Info("Tuning: Kp=%.2f Ki=%.2f Kd=%.2f throttle=[%.2f, %.2f]",
		vc.Tuning.Kp, vc.Tuning.Ki, vc.Tuning.Kd, vc.Tuning.ThrottleMin, vc.Tuning.ThrottleMax)

	return r, nil
}

// newRunner wires already-open transports; frames are resolved against cmap
func newRunner(cfg RunnerConfig, cmap *utils.CANMap, ctrl *control.Controller,
	reader utils.CANReader, writer utils.CANWriter, log *utils.Logger) (*Runner, error) {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}

	fd, err := cmap.FrameByName(cfg.FrameName)
	if err != nil {
		return nil, fmt.Errorf("frame: %w", err)
	}
	if fd.CycleMS <= 0 {
		return nil, fmt.Errorf("frame %s has invalid cycle_ms %d", fd.Name, fd.CycleMS)
	}
	for _, sig := range []string{sigThrottle, sigBrake, sigSteer, sigDBWEnabled} {
		if _, ok := fd.Signal(sig); !ok {
			return nil, fmt.Errorf("frame %s has no signal %s", fd.Name, sig)
		}
	}

	rxIDs := make(map[string]uint32, 3)
	for name, sig := range map[string]string{
		frameTwistCmd:     sigLinearVelocity,
		frameDBWStatus:    sigDBWEnabled,
		frameVehicleState: sigVehicleSpeed,
	} {
		rx, err := cmap.FrameByName(name)
		if err != nil {
			return nil, fmt.Errorf("rx frame: %w", err)
		}
		if _, ok := rx.Signal(sig); !ok {
			return nil, fmt.Errorf("frame %s has no signal %s", name, sig)
		}
		rxIDs[name] = rx.ID
	}

	p := ctrl.Params()
	log.Info("Controller initialized: mass=%.1fkg wheel_radius=%.4fm decel_limit=%.2f steer_ratio=%.1f max_steer=%.2frad",
		p.VehicleMassKg, p.WheelRadiusM, p.DecelLimit, p.SteerRatio, p.MaxSteerAngle)

	return &Runner{
		cfg:      cfg,
		log:      log,
		rxLog:    log.Named("rx"),
		cmap:     cmap,
		writer:   writer,
		reader:   reader,
		fd:       fd,
		ctrl:     ctrl,
		stats:    NewTrackingStats(),
		twistID:  rxIDs[frameTwistCmd],
		statusID: rxIDs[frameDBWStatus],
		speedID:  rxIDs[frameVehicleState],
	}, nil
}

func (r *Runner) Close() {
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.writer != nil {
		_ = r.writer.Close()
	}
}

// Run receives inputs and transmits the actuator frame every cycle until ctx is done
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Starting DBW: frame=%s id=0x%X dlc=%d cycle_ms=%d iface=%s stale_after=%s",
		r.fd.Name, r.fd.ID, r.fd.DLC, r.fd.CycleMS, r.cfg.Interface, r.cfg.StaleAfter)

	g, ctx := errgroup.WithContext(ctx)
	rxChan := make(chan rxMessage, 100)

	g.Go(func() error {
		return r.receiveLoop(ctx, rxChan)
	})
	g.Go(func() error {
		// Closing the reader is what unblocks a pending receive
		<-ctx.Done()
		_ = r.reader.Close()
		return nil
	})
	g.Go(func() error {
		return r.controlLoop(ctx, rxChan)
	})

	err := g.Wait()
	r.log.Info("Tracking: %s", r.stats.Summary())
	return err
}

func (r *Runner) controlLoop(ctx context.Context, rxChan <-chan rxMessage) error {
	ticker := time.NewTicker(time.Duration(r.fd.CycleMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.release()
			r.log.Info("Completed TX. frames_sent=%d", r.sent)
			return ctx.Err()

		case msg := <-rxChan:
			r.apply(msg)

		case now := <-ticker.C:
			frame, err := r.step(now)
			if err != nil {
				r.log.Error("Encode failed: %v", err)
				return err
			}

			if err := r.writer.WriteFrame(ctx, frame); err != nil {
				if ctx.Err() != nil {
					continue
				}
				r.log.Critical("Transmit failed: %v", err)
				return fmt.Errorf("transmit: %w", err)
			}
			r.sent++
			r.log.Trace("TX id=0x%X len=%d data=% X throttle=%.3f brake=%.1f steer=%.3f",
				frame.ID, frame.Length, frame.Data[:frame.Length],
				r.lastCmd.Throttle, r.lastCmd.Brake, r.lastCmd.Steer)
		}
	}
}

// apply records a decoded RX frame
func (r *Runner) apply(msg rxMessage) {
	switch msg.id {
	case r.twistID:
		r.in.linear = msg.values[sigLinearVelocity]
		r.in.angular = msg.values[sigAngularVelocity]
		r.in.twistAt = msg.at
	case r.statusID:
		r.in.dbwEnabled = msg.values[sigDBWEnabled] != 0
		r.in.statusAt = msg.at
	case r.speedID:
		r.in.speed = msg.values[sigVehicleSpeed]
		r.in.speedAt = msg.at
	}
}

// step runs one control tick at now and returns the encoded command frame
func (r *Runner) step(now time.Time) (can.Frame, error) {
	cmd := r.command(now)
	out := r.ctrl.Control(cmd)
	r.lastCmd = out

	diag := r.ctrl.GetDiagnostics()
	r.stats.Add(diag.Enabled, diag.VelocityError, out)

	if r.sent%100 == 0 && r.log.Enabled(utils.DEBUG) {
		r.log.Debug("%s v=%.2f target=%.2f throttle=%.3f brake=%.1f steer=%.3f %s",
			control.GetControlModeStr(out), cmd.CurrentVelocity, cmd.LinearVelocity,
			out.Throttle, out.Brake, out.Steer, diag)
	}

	return r.cmap.EncodeFrame(r.fd.Name, map[string]float64{
		sigThrottle:   out.Throttle,
		sigBrake:      out.Brake,
		sigSteer:      out.Steer,
		sigDBWEnabled: control.BoolToFloat(cmd.DBWEnabled),
	})
}

// command builds the controller input. Authority is withheld unless the
// driver engaged dbw and both the twist command and the speed are fresh.
func (r *Runner) command(now time.Time) control.ControlCommand {
	fresh := func(at time.Time) bool {
		return !at.IsZero() && now.Sub(at) <= r.cfg.StaleAfter
	}

	twistOK := fresh(r.in.twistAt)
	speedOK := fresh(r.in.speedAt)
	statusOK := fresh(r.in.statusAt)

	stale := r.in.dbwEnabled && (!twistOK || !speedOK || !statusOK)
	if stale && !r.stale {
		r.log.Warn("Inputs stale (twist=%v speed=%v status=%v) - releasing actuators", twistOK, speedOK, statusOK)
	} else if !stale && r.stale {
		r.log.Info("Inputs fresh again")
	}
	r.stale = stale

	return control.ControlCommand{
		LinearVelocity:  r.in.linear,
		AngularVelocity: r.in.angular,
		CurrentVelocity: r.in.speed,
		DBWEnabled:      r.in.dbwEnabled && twistOK && speedOK && statusOK,
	}
}

// release transmits one all-zero, disabled command so actuators do not hold
// the last command after the node stops
func (r *Runner) release() {
	r.ctrl.Control(control.ControlCommand{})
	frame, err := r.cmap.EncodeFrame(r.fd.Name, nil)
	if err != nil {
		r.log.Error("Encode release frame: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.fd.CycleMS)*time.Millisecond)
	defer cancel()
	if err := r.writer.WriteFrame(ctx, frame); err != nil {
		r.log.Warn("Transmit release frame: %v", err)
	}
}

// receiveLoop reads CAN frames and forwards the ones the controller consumes
func (r *Runner) receiveLoop(ctx context.Context, rxChan chan<- rxMessage) error {
	r.rxLog.Debug("RX loop started")
	defer r.rxLog.Debug("RX loop stopped")

	for {
		frame, err := r.reader.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.rxLog.Error("RX error: %v", err)
			return fmt.Errorf("receive: %w", err)
		}
		r.rxLog.Trace("RX id=0x%X len=%d data=% X", frame.ID, frame.Length, frame.Data[:frame.Length])

		msg, ok, err := r.decode(frame, time.Now())
		if err != nil {
			r.rxLog.Error("Decode 0x%X: %v", frame.ID, err)
			continue
		}
		if !ok {
			continue
		}

		select {
		case rxChan <- msg:
		case <-ctx.Done():
			return nil
		default:
			// Channel full, skip
		}
	}
}

// decode turns an RX frame into an rxMessage; ok is false for frames this node ignores
func (r *Runner) decode(frame can.Frame, at time.Time) (rxMessage, bool, error) {
	if frame.IsRemote || frame.IsExtended {
		return rxMessage{}, false, nil
	}
	switch frame.ID {
	case r.twistID, r.statusID, r.speedID:
	default:
		return rxMessage{}, false, nil
	}

	values, err := r.cmap.DecodeFrame(frame)
	if err != nil {
		return rxMessage{}, false, err
	}
	return rxMessage{id: frame.ID, values: values, at: at}, true, nil
}
