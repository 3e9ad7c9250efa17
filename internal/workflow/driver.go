// Package workflow implements the Workflow Driver (C6): a three-phase
// sequential analysis controller that wraps the external agent pipeline
// collaborator, validates its outputs, and writes progress and the final
// artifact through the Cache Facade. See spec §4.6.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sacahan/trailtag/internal/agentpipeline"
	"github.com/sacahan/trailtag/internal/executor"
	"github.com/sacahan/trailtag/internal/model"
)

// defaultSearchSubject mirrors the fixed kickoff input used by the CrewAI
// original (every job searches for the same categories of place).
const defaultSearchSubject = "找出景點、餐廳、交通方式與住宿的地理位置"

var phaseEntryProgress = map[model.JobPhase]int{
	model.PhaseMetadata: 10,
	model.PhaseSummary:  30,
	model.PhaseGeocode:  70,
}

var phaseExitProgress = map[model.JobPhase]int{
	model.PhaseMetadata: 30,
	model.PhaseSummary:  70,
	model.PhaseGeocode:  100,
}

// cacheFacade is the subset of *cache.Cache the driver needs to write the
// final artifact under analysis:{video_id}.
type cacheFacade interface {
	Set(ctx context.Context, key string, value any, params map[string]any, ttl int) bool
}

// Driver is the Workflow Driver (C6).
type Driver struct {
	pipeline agentpipeline.Pipeline
	cache    cacheFacade
}

// New constructs a Driver over the given agent pipeline and cache facade.
func New(pipeline agentpipeline.Pipeline, c cacheFacade) *Driver {
	return &Driver{pipeline: pipeline, cache: c}
}

// metadataGuardrail enforces the metadata phase's required-field contract:
// subtitles must be present, mirroring validate_video_map_generation_output
// in the CrewAI original (original_source/src/trailtag/core/crew.py).
func metadataGuardrail(out agentpipeline.PhaseOutput) error {
	if out.Phase != model.PhaseMetadata {
		return nil
	}
	m, ok := out.Data.(map[string]any)
	if !ok || m == nil {
		return &agentpipeline.GuardrailError{Phase: out.Phase, Message: "無法取得結構化輸出 (pydantic/json_dict) 或輸出為空"}
	}
	if m["subtitles"] == nil {
		return &agentpipeline.GuardrailError{Phase: out.Phase, Message: "欄位 'subtitles' 缺失或為空"}
	}
	return nil
}

// Execute runs the three-phase workflow for job and conforms to
// executor.Workflow, so it can be submitted directly to the Executor (C5).
// report is called once on entry to the metadata phase and then on each
// phase's completion (with that phase's exit progress); on success the final
// MapVisualization is written to the cache under analysis:{video_id} and
// the returned job carries status=done, progress=100, phase=geocode.
func (d *Driver) Execute(ctx context.Context, job model.Job, report executor.ProgressFunc) (model.Job, error) {
	report(model.PhaseMetadata, phaseEntryProgress[model.PhaseMetadata])

	input := agentpipeline.Input{
		JobID:         job.JobID,
		VideoID:       job.VideoID,
		SearchSubject: defaultSearchSubject,
	}

	final, err := d.pipeline.Run(ctx, input, metadataGuardrail, func(out agentpipeline.PhaseOutput) {
		if exit, ok := phaseExitProgress[out.Phase]; ok {
			report(out.Phase, exit)
		}
	})
	if err != nil {
		return d.fail(job, err), err
	}

	mapViz, err := extractMapVisualization(final.Data)
	if err != nil {
		return d.fail(job, &agentpipeline.GuardrailError{Phase: model.PhaseGeocode, Message: err.Error()}), err
	}
	if !mapViz.Valid() {
		verr := &agentpipeline.GuardrailError{
			Phase:   model.PhaseGeocode,
			Message: "地圖視覺化輸出缺少有效路線或座標比例不足",
		}
		return d.fail(job, verr), verr
	}

	d.cache.Set(ctx, "analysis:"+job.VideoID, mapViz, nil, 0)

	job.Status = model.JobStatusDone
	job.Phase = model.PhaseGeocode
	job.Progress = 100
	job.Result = &mapViz
	job.Error = nil
	return job, nil
}

// fail builds the terminal failed-job shape for either a guardrail
// rejection (type=validation) or an unexpected exception (type=exception),
// per spec §4.6.
func (d *Driver) fail(job model.Job, err error) model.Job {
	job.Status = model.JobStatusFailed
	job.Phase = model.PhaseGeocode
	job.Progress = 0

	var gerr *agentpipeline.GuardrailError
	if errors.As(err, &gerr) {
		job.Error = &model.JobError{Type: "validation", Message: gerr.Message}
	} else {
		job.Error = &model.JobError{Type: "exception", Message: err.Error()}
	}
	return job
}

// extractMapVisualization recovers the final MapVisualization from the
// geocode phase's opaque output, following the precedence spec §4.6
// describes: structured object -> json-dict field -> raw field parsed as
// JSON -> raw field as-is.
func extractMapVisualization(data any) (model.MapVisualization, error) {
	switch v := data.(type) {
	case model.MapVisualization:
		return v, nil
	case map[string]any:
		if nested, ok := v["map_visualization"]; ok {
			return extractMapVisualization(nested)
		}
		return remarshalMapVisualization(v)
	case string:
		var mv model.MapVisualization
		if err := json.Unmarshal([]byte(v), &mv); err != nil {
			return model.MapVisualization{}, fmt.Errorf("geocode 階段輸出無法解析為 MapVisualization: %w", err)
		}
		return mv, nil
	default:
		return model.MapVisualization{}, fmt.Errorf("geocode 階段輸出型別不支援: %T", data)
	}
}

func remarshalMapVisualization(m map[string]any) (model.MapVisualization, error) {
	var mv model.MapVisualization
	data, err := json.Marshal(m)
	if err != nil {
		return mv, err
	}
	if err := json.Unmarshal(data, &mv); err != nil {
		return mv, err
	}
	return mv, nil
}
