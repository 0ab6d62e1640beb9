package handlers

import (
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-org-registry/registry"
	"github.com/saiset-co/sai-org-registry/types"
	"github.com/saiset-co/sai-org-registry/utils"
)

func (h *Handlers) listPeople(ctx *types.RequestCtx) {
	people, err := h.registry.ListPeople(ctx.Context(), pageOf(ctx))
	h.respond(ctx, fasthttp.StatusOK, people, err)
}

func (h *Handlers) searchPeople(ctx *types.RequestCtx) {
	q := strings.TrimSpace(string(ctx.QueryArgs().Peek("q")))
	if q == "" {
		utils.WriteError(ctx.RequestCtx, fasthttp.StatusBadRequest, "Query parameter q is required", utils.CodeValidationError, nil)
		return
	}

	people, err := h.registry.SearchPeople(ctx.Context(), q, ctx.QueryArgs().GetUintOrZero("limit"))
	h.respond(ctx, fasthttp.StatusOK, people, err)
}

func (h *Handlers) getPerson(ctx *types.RequestCtx) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	person, err := h.registry.GetPerson(ctx.Context(), id)
	h.respond(ctx, fasthttp.StatusOK, person, err)
}

func (h *Handlers) createPerson(ctx *types.RequestCtx) {
	var in registry.PersonInput
	if !decode(h, ctx, &in) {
		return
	}
	person, err := h.registry.CreatePerson(ctx.Context(), in)
	h.respond(ctx, fasthttp.StatusCreated, person, err)
}

func (h *Handlers) updatePerson(ctx *types.RequestCtx) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var in registry.PersonInput
	if !decode(h, ctx, &in) {
		return
	}
	person, err := h.registry.UpdatePerson(ctx.Context(), id, in)
	h.respond(ctx, fasthttp.StatusOK, person, err)
}

func (h *Handlers) deletePerson(ctx *types.RequestCtx) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	err := h.registry.DeletePerson(ctx.Context(), id)
	h.respond(ctx, fasthttp.StatusOK, map[string]interface{}{"deleted": id}, err)
}

func (h *Handlers) listDepartments(ctx *types.RequestCtx) {
	departments, err := h.registry.ListDepartments(ctx.Context(), pageOf(ctx))
	h.respond(ctx, fasthttp.StatusOK, departments, err)
}

func (h *Handlers) getDepartment(ctx *types.RequestCtx) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	department, err := h.registry.GetDepartment(ctx.Context(), id)
	h.respond(ctx, fasthttp.StatusOK, department, err)
}

func (h *Handlers) createDepartment(ctx *types.RequestCtx) {
	var in registry.DepartmentInput
	if !decode(h, ctx, &in) {
		return
	}
	department, err := h.registry.CreateDepartment(ctx.Context(), in)
	h.respond(ctx, fasthttp.StatusCreated, department, err)
}

func (h *Handlers) updateDepartment(ctx *types.RequestCtx) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var in registry.DepartmentInput
	if !decode(h, ctx, &in) {
		return
	}
	department, err := h.registry.UpdateDepartment(ctx.Context(), id, in)
	h.respond(ctx, fasthttp.StatusOK, department, err)
}

func (h *Handlers) listPositions(ctx *types.RequestCtx) {
	positions, err := h.registry.ListPositions(ctx.Context(), pageOf(ctx))
	h.respond(ctx, fasthttp.StatusOK, positions, err)
}

func (h *Handlers) getPosition(ctx *types.RequestCtx) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	position, err := h.registry.GetPosition(ctx.Context(), id)
	h.respond(ctx, fasthttp.StatusOK, position, err)
}

func (h *Handlers) createPosition(ctx *types.RequestCtx) {
	var in registry.PositionInput
	if !decode(h, ctx, &in) {
		return
	}
	position, err := h.registry.CreatePosition(ctx.Context(), in)
	h.respond(ctx, fasthttp.StatusCreated, position, err)
}

func (h *Handlers) listEmployment(ctx *types.RequestCtx) {
	records, err := h.registry.ListEmployment(ctx.Context(), pageOf(ctx))
	h.respond(ctx, fasthttp.StatusOK, records, err)
}

func (h *Handlers) getEmployment(ctx *types.RequestCtx) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	record, err := h.registry.GetEmployment(ctx.Context(), id)
	h.respond(ctx, fasthttp.StatusOK, record, err)
}

func (h *Handlers) createEmployment(ctx *types.RequestCtx) {
	var in registry.EmploymentInput
	if !decode(h, ctx, &in) {
		return
	}
	record, err := h.registry.CreateEmployment(ctx.Context(), in)
	h.respond(ctx, fasthttp.StatusCreated, record, err)
}

func (h *Handlers) updateEmployment(ctx *types.RequestCtx) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var in registry.EmploymentInput
	if !decode(h, ctx, &in) {
		return
	}
	record, err := h.registry.UpdateEmployment(ctx.Context(), id, in)
	h.respond(ctx, fasthttp.StatusOK, record, err)
}

func (h *Handlers) statistics(ctx *types.RequestCtx) {
	stats, err := h.registry.Statistics(ctx.Context())
	h.respond(ctx, fasthttp.StatusOK, stats, err)
}
