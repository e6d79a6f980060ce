// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

import (
	"sync"
	"testing"
)

func processAll(t *testing.T, in *Instrument) Result {
	t.Helper()
	res, ok := in.Process()
	if !ok {
		t.Fatal("Process should not be skipped without contention")
	}
	return res
}

func TestInstrument_ProcessWaveform(t *testing.T) {
	in := NewInstrument(DefaultConfig())
	in.Ingest(EncodeWaveformFrame(squareRaw(10)))

	res := processAll(t, in)
	if res.Waveforms != 1 || res.Controls != 0 {
		t.Fatalf("Expected 1 waveform, got %+v", res)
	}

	st := in.Latest()
	if st.Sequence != 1 || st.HistoryLen != 1 {
		t.Errorf("Expected sequence 1 and one history entry, got %d/%d", st.Sequence, st.HistoryLen)
	}
	if st.Samples[0][0] != MaxVoltage || st.Samples[0][10] != 0 {
		t.Errorf("Unexpected samples %v %v", st.Samples[0][0], st.Samples[0][10])
	}
	for ch := 0; ch < NumChannels; ch++ {
		if !almostEqual(st.Measurements[ch].Frequency, 400, 1e-9) {
			t.Errorf("CH%d: expected 400 Hz, got %v", ch+1, st.Measurements[ch].Frequency)
		}
	}
}

func TestInstrument_ProcessControlEvents(t *testing.T) {
	in := NewInstrument(Config{Profile: ProfileClassic, Enabled: AllChannels})
	in.Ingest(controlFrame([NumPots]uint16{0, 0, ADCMax}, ButtonAutoScale))

	res := processAll(t, in)
	if res.Controls != 1 || len(res.Events) != 1 || res.Events[0].Button != ButtonAutoScale {
		t.Fatalf("Expected one AUTO_SCALE event, got %+v", res)
	}
	if got := in.Control().VerticalPosition; got != 2.5 {
		t.Errorf("Expected position 2.5, got %v", got)
	}

	// Held button does not fire again
	in.Ingest(controlFrame([NumPots]uint16{0, 0, ADCMax}, ButtonAutoScale))
	if res := processAll(t, in); len(res.Events) != 0 {
		t.Errorf("Held button should not fire, got %v", res.Events)
	}
	if in.Statistics().ButtonPresses != 1 {
		t.Errorf("Expected 1 button press counted, got %d", in.Statistics().ButtonPresses)
	}
}

func TestInstrument_ProcessSkipsWhenBusy(t *testing.T) {
	in := NewInstrument(DefaultConfig())
	in.Ingest(EncodeWaveformFrame(squareRaw(10)))

	in.bufMu.Lock()
	_, ok := in.Process()
	in.bufMu.Unlock()
	if ok {
		t.Fatal("Process should skip while the buffer is held")
	}
	if in.Statistics().SkippedPasses != 1 {
		t.Errorf("Expected 1 skipped pass, got %d", in.Statistics().SkippedPasses)
	}

	// Bytes are still there for the next pass
	if res := processAll(t, in); res.Waveforms != 1 {
		t.Errorf("Expected the buffered waveform on the next pass, got %d", res.Waveforms)
	}
}

func TestInstrument_HistoryBounded(t *testing.T) {
	in := NewInstrument(DefaultConfig())
	for i := 0; i < 15; i++ {
		in.Ingest(EncodeWaveformFrame(constantRaw(uint16(i), 0, 0)))
	}
	res := processAll(t, in)
	if res.Waveforms != 15 {
		t.Fatalf("Expected 15 waveforms, got %d", res.Waveforms)
	}
	if len(in.History()) != HistoryDepth {
		t.Errorf("Expected %d history entries, got %d", HistoryDepth, len(in.History()))
	}
}

func TestInstrument_AutoZero(t *testing.T) {
	in := NewInstrument(DefaultConfig())
	in.Ingest(EncodeWaveformFrame(constantRaw(100, 200, 300)))
	processAll(t, in)

	offsets := in.AutoZero()
	if !almostEqual(offsets[1], RawToVolts(200), 1e-12) {
		t.Errorf("Expected CH2 offset %v, got %v", RawToVolts(200), offsets[1])
	}

	in.Ingest(EncodeWaveformFrame(constantRaw(100, 200, 300)))
	processAll(t, in)
	s := in.Samples()
	for ch := 0; ch < NumChannels; ch++ {
		if !almostEqual(s[ch][50], 0, 1e-12) {
			t.Errorf("CH%d: expected ~0V after auto-zero, got %v", ch+1, s[ch][50])
		}
	}
}

func TestInstrument_AutoZeroTwice(t *testing.T) {
	in := NewInstrument(DefaultConfig())
	in.Ingest(EncodeWaveformFrame(constantRaw(100, 200, 300)))
	processAll(t, in)
	in.AutoZero()

	// Samples are now ~0 V, so a second press replaces the offset with ~0
	in.Ingest(EncodeWaveformFrame(constantRaw(100, 200, 300)))
	processAll(t, in)
	offsets := in.AutoZero()
	for ch := 0; ch < NumChannels; ch++ {
		if !almostEqual(offsets[ch], 0, 1e-12) {
			t.Errorf("CH%d: expected offset ~0 after a second auto-zero, got %v", ch+1, offsets[ch])
		}
	}
}

func TestInstrument_CycleChannels(t *testing.T) {
	in := NewInstrument(DefaultConfig())
	expected := []Channels{
		{true, false, false},
		{false, true, false},
		{false, false, true},
		{true, false, false},
	}
	for i, want := range expected {
		if got := in.CycleChannels(); got != want {
			t.Errorf("Step %d: expected %v, got %v", i, want, got)
		}
	}

	in.SetEnabled(Channels{true, true, false})
	if got := in.CycleChannels(); got != AllChannels {
		t.Errorf("Two channels should cycle to all, got %v", got)
	}
}

func TestInstrument_DisableClearsMeasurements(t *testing.T) {
	in := NewInstrument(DefaultConfig())
	in.Ingest(EncodeWaveformFrame(squareRaw(10)))
	processAll(t, in)

	in.SetChannelEnabled(2, false)
	m := in.Measurements()
	if m[2] != (Measurement{}) {
		t.Errorf("Disabled channel should be zeroed, got %+v", m[2])
	}
	if m[0].Vpp != MaxVoltage {
		t.Errorf("Enabled channel should keep its values, got %+v", m[0])
	}
}

func TestInstrument_AutoScale(t *testing.T) {
	in := NewInstrument(DefaultConfig())
	if in.AutoScale() {
		t.Error("Empty window should not auto-scale")
	}

	raw := constantRaw(0, 300, 300)
	for i := 0; i < SamplesPerChan; i += 2 {
		raw[0][i] = ADCMax
	}
	in.Ingest(EncodeWaveformFrame(raw))
	processAll(t, in)

	if !in.AutoScale() {
		t.Fatal("Expected auto-scale to apply")
	}
	if got := in.Control().VoltPerDiv[0]; !almostEqual(got, 1.25, 1e-12) {
		t.Errorf("Expected 1.25 V/div, got %v", got)
	}
}

func TestInstrument_RunAndTrigger(t *testing.T) {
	in := NewInstrument(DefaultConfig())
	if !in.Running() {
		t.Fatal("Instrument should start running")
	}
	if in.ToggleRun() {
		t.Error("ToggleRun should stop")
	}
	in.SetRunning(true)
	if !in.Running() {
		t.Error("SetRunning(true) should run")
	}

	if got := in.NudgeTriggerLevel(TriggerStep); !almostEqual(got, 2.6, 1e-12) {
		t.Errorf("Expected trigger 2.6V, got %v", got)
	}
	if in.ToggleTriggerEdge() != EdgeFalling {
		t.Error("Expected falling edge")
	}
}

func TestInstrument_SnapshotRestore(t *testing.T) {
	a := NewInstrument(DefaultConfig())
	a.SetOffsets(Offsets{0.1, 0.2, 0.3})
	a.SetTimeBase(0.002)
	a.SetVoltPerDiv(0.5)
	a.SetTriggerLevel(1.2)
	a.ToggleTriggerEdge()

	b := NewInstrument(DefaultConfig())
	b.Restore(a.Snapshot())

	if b.Offsets() != a.Offsets() {
		t.Errorf("Offsets: expected %v, got %v", a.Offsets(), b.Offsets())
	}
	if b.Control() != a.Control() {
		t.Errorf("Control: expected %+v, got %+v", a.Control(), b.Control())
	}
}

func TestInstrument_Reset(t *testing.T) {
	in := NewInstrument(DefaultConfig())
	in.SetOffsets(Offsets{0.5, 0, 0})
	in.Ingest(EncodeWaveformFrame(squareRaw(10)))
	processAll(t, in)
	in.Ingest([]byte{0xAA, 0x55, 0x01})

	in.Reset()
	st := in.Latest()
	if st.Sequence != 0 || st.HistoryLen != 0 || in.Buffered() != 0 {
		t.Errorf("Expected cleared state, got seq=%d history=%d buffered=%d", st.Sequence, st.HistoryLen, in.Buffered())
	}
	if st.Offsets[0] != 0.5 {
		t.Error("Reset should keep calibration")
	}
}

func TestInstrument_ConcurrentIngestProcess(t *testing.T) {
	in := NewInstrument(DefaultConfig())
	frame := EncodeWaveformFrame(squareRaw(10))
	const frames = 50

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < frames; i++ {
			// Split each frame to exercise partial buffering
			in.Ingest(frame[:600])
			in.Ingest(frame[600:])
		}
	}()

	total := 0
	go func() {
		defer wg.Done()
		for i := 0; i < frames*4; i++ {
			if res, ok := in.Process(); ok {
				total += res.Waveforms
			}
			_ = in.Latest()
		}
	}()
	wg.Wait()

	res := processAll(t, in)
	total += res.Waveforms
	if total != frames {
		t.Errorf("Expected %d waveforms, got %d", frames, total)
	}
	if in.Statistics().BytesIngested != uint64(frames*len(frame)) {
		t.Errorf("Expected %d bytes ingested, got %d", frames*len(frame), in.Statistics().BytesIngested)
	}
}
