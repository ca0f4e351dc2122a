package http

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"aviary/internal/core"
	"aviary/internal/services"
	"aviary/internal/storage"
)

// resource binds the CRUD endpoints of one record type to its service calls.
// Reads return V, which is T itself or T with its references resolved.
type resource[T, V any] struct {
	list   func(r *http.Request) ([]V, error)
	get    func(ctx context.Context, id string) (V, error)
	create func(ctx context.Context, v T) (T, error)
	update func(ctx context.Context, id string, v T) (T, error)
	delete func(ctx context.Context, id string) error
}

// mount registers GET/POST on path and GET/PUT/DELETE on path/{id}.
func (res resource[T, V]) mount(r *mux.Router, path string) {
	r.HandleFunc(path, res.handleList).Methods(http.MethodGet)
	r.HandleFunc(path, res.handleCreate).Methods(http.MethodPost)
	r.HandleFunc(path+"/{id}", res.handleGet).Methods(http.MethodGet)
	r.HandleFunc(path+"/{id}", res.handleUpdate).Methods(http.MethodPut)
	r.HandleFunc(path+"/{id}", res.handleDelete).Methods(http.MethodDelete)
}

func (res resource[T, V]) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := res.list(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []V{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (res resource[T, V]) handleGet(w http.ResponseWriter, r *http.Request) {
	item, err := res.get(r.Context(), pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (res resource[T, V]) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in T
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := res.create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (res resource[T, V]) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in T
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := res.update(r.Context(), pathID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (res resource[T, V]) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := res.delete(r.Context(), pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) registerRecordRoutes(api *mux.Router) {
	rec := s.svc.Records

	resource[core.Bird, core.Bird]{
		list: func(r *http.Request) ([]core.Bird, error) {
			return rec.ListBirds(r.Context(), birdFilter(r))
		},
		get:    rec.GetBird,
		create: rec.CreateBird,
		update: rec.UpdateBird,
		delete: rec.DeleteBird,
	}.mount(api, "/birds")

	resource[core.BreedingPair, services.PairDetail]{
		list:   func(r *http.Request) ([]services.PairDetail, error) { return rec.ListPairDetails(r.Context()) },
		get:    rec.GetPairDetail,
		create: rec.CreatePair,
		update: rec.UpdatePair,
		delete: rec.DeletePair,
	}.mount(api, "/breeding-pairs")

	resource[core.Clutch, services.ClutchDetail]{
		list: func(r *http.Request) ([]services.ClutchDetail, error) {
			return rec.ListClutchDetails(r.Context(), queryString(r.URL.Query(), "breeding_pair_id"))
		},
		get:    rec.GetClutchDetail,
		create: rec.CreateClutch,
		update: rec.UpdateClutch,
		delete: rec.DeleteClutch,
	}.mount(api, "/clutches")

	resource[core.Incubator, core.Incubator]{
		list:   func(r *http.Request) ([]core.Incubator, error) { return rec.ListIncubators(r.Context()) },
		get:    rec.GetIncubator,
		create: rec.CreateIncubator,
		update: rec.UpdateIncubator,
		delete: rec.DeleteIncubator,
	}.mount(api, "/incubators")

	resource[core.Permit, core.Permit]{
		list:   func(r *http.Request) ([]core.Permit, error) { return rec.ListPermits(r.Context()) },
		get:    rec.GetPermit,
		create: rec.CreatePermit,
		update: rec.UpdatePermit,
		delete: rec.DeletePermit,
	}.mount(api, "/wildlife-permits")

	tx := s.svc.Transactions
	resource[core.Transaction, core.Transaction]{
		list: func(r *http.Request) ([]core.Transaction, error) {
			f, err := queryRange(r.URL.Query())
			if err != nil {
				return nil, err
			}
			return tx.ListTransactions(r.Context(), f)
		},
		get:    tx.GetTransaction,
		create: tx.CreateTransaction,
		update: tx.UpdateTransaction,
		delete: tx.DeleteTransaction,
	}.mount(api, "/transactions")

	api.HandleFunc("/genealogy/{id}", s.handleGenealogy).Methods(http.MethodGet)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/hatch-estimate", s.handleHatchEstimate).Methods(http.MethodGet)
}

func birdFilter(r *http.Request) storage.BirdFilter {
	q := r.URL.Query()
	return storage.BirdFilter{
		Species: queryString(q, "species"),
		Status:  core.BirdStatus(queryString(q, "status")),
		Gender:  core.Gender(queryString(q, "gender")),
		Query:   queryString(q, "q"),
	}
}

func (s *Server) handleGenealogy(w http.ResponseWriter, r *http.Request) {
	g, err := s.svc.Records.Genealogy(r.Context(), pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleSearch matches q against name, ring number and species, combined
// with the same filters as the bird list.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	f := birdFilter(r)
	if f.Query == "" {
		writeError(w, r, badRequest("q is required"))
		return
	}
	birds, err := s.svc.Records.ListBirds(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if birds == nil {
		birds = []core.Bird{}
	}
	writeJSON(w, http.StatusOK, birds)
}

func (s *Server) handleHatchEstimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	laying, err := queryDate(q, "laying_date")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if laying.IsEmpty() {
		writeError(w, r, badRequest("laying_date is required"))
		return
	}
	est, err := s.svc.Records.EstimateHatch(laying, queryString(q, "species"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}
