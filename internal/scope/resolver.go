// Package scope decides which knowledge bases a requester may query and keeps
// the per-house indexes loaded for the lifetime of the process.
package scope

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rentbot/internal/domain"
	"rentbot/internal/extract"
	"rentbot/internal/logger"
	"rentbot/internal/service"
)

// PersonalID is the scope id of the session's ad hoc upload.
const PersonalID = "personal"

const storedNameLayout = "20060102150405"

// HouseScopeID returns the scope id of a house knowledge base.
func HouseScopeID(houseID int64) string { return "house:" + strconv.FormatInt(houseID, 10) }

// Resolver owns the personal scope and a cache of loaded house scopes.
type Resolver struct {
	svc       *service.RAGService
	registry  domain.Registry
	uploadDir string
	now       func() time.Time

	// addMu serializes the duplicate check and registration of house files.
	addMu sync.Mutex

	mu       sync.Mutex
	personal *service.Scope
	houses   map[int64]*service.Scope
}

// NewResolver creates a resolver storing house files below uploadDir.
func NewResolver(svc *service.RAGService, registry domain.Registry, uploadDir string) *Resolver {
	return &Resolver{
		svc:       svc,
		registry:  registry,
		uploadDir: uploadDir,
		now:       func() time.Time { return time.Now().UTC() },
		houses:    map[int64]*service.Scope{},
	}
}

// Personal returns the current personal scope, or nil before any upload.
func (r *Resolver) Personal() *service.Scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.personal
}

// SetPersonal installs a previously saved personal scope.
func (r *Resolver) SetPersonal(s *service.Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.personal = s
}

// UploadPersonal indexes raw into a fresh personal scope that replaces the
// previous one. On failure the previous scope is kept.
func (r *Resolver) UploadPersonal(ctx context.Context, filename string, raw []byte) (int, error) {
	next := r.svc.NewScope(PersonalID)
	n, err := r.svc.Ingest(ctx, next, domain.Document{
		SourceID: uuid.NewString(),
		Path:     filename,
		Kind:     extract.KindFromFilename(filename),
		Raw:      raw,
	})
	if err != nil {
		return 0, err
	}
	r.SetPersonal(next)
	return n, nil
}

// Loaded reports whether a house scope is in the cache.
func (r *Resolver) Loaded(houseID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.houses[houseID]
	return ok
}

// LoadHouse rebuilds a house scope from its registered files and caches it.
// Loading an already cached house is a no-op. Files that cannot be read or
// yield no text are logged and skipped. It returns the chunks indexed.
func (r *Resolver) LoadHouse(ctx context.Context, houseID int64) (int, error) {
	if r.Loaded(houseID) {
		return 0, nil
	}
	regs, err := r.registry.ListDocuments(ctx, houseID)
	if err != nil {
		return 0, fmt.Errorf("loading house %d: %w", houseID, err)
	}

	sc := r.svc.NewScope(HouseScopeID(houseID))
	total := 0
	hashes := map[string]bool{}
	for _, reg := range regs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if reg.ContentHash != "" {
			if hashes[reg.ContentHash] {
				logger.Debug("house %d: %s duplicates an earlier document", houseID, reg.StoragePath)
				continue
			}
			hashes[reg.ContentHash] = true
		}
		n, err := r.ingestStored(ctx, sc, reg.StoragePath)
		if err != nil {
			logger.Warn("house %d: skipping %s: %v", houseID, reg.StoragePath, err)
			continue
		}
		total += n
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.houses[houseID]; ok {
		return 0, nil
	}
	r.houses[houseID] = sc
	logger.Info("house %d: loaded %d documents, %d chunks", houseID, len(regs), total)
	return total, nil
}

func (r *Resolver) ingestStored(ctx context.Context, sc *service.Scope, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return r.svc.Ingest(ctx, sc, domain.Document{
		SourceID: filepath.Base(path),
		Path:     path,
		Kind:     extract.KindFromFilename(path),
		Raw:      raw,
	})
}

// AddHouseDocument stores raw as "<timestamp>_<filename>" in the house's
// upload directory, registers it, and indexes it when the house is loaded.
// Content already registered for the house is not stored again: the existing
// registration is returned with ErrDuplicateDocument.
func (r *Resolver) AddHouseDocument(ctx context.Context, houseID int64, filename string, raw []byte) (domain.Registration, error) {
	if houseID == 0 || filename == "" {
		return domain.Registration{}, domain.ErrInvalidInput
	}
	hash := service.ContentHash(raw)

	r.addMu.Lock()
	defer r.addMu.Unlock()

	regs, err := r.registry.ListDocuments(ctx, houseID)
	if err != nil {
		return domain.Registration{}, err
	}
	for _, reg := range regs {
		if reg.ContentHash == hash {
			return reg, fmt.Errorf("%s: %w", filename, domain.ErrDuplicateDocument)
		}
	}

	now := r.now()
	dir := filepath.Join(r.uploadDir, strconv.FormatInt(houseID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.Registration{}, fmt.Errorf("creating upload dir: %w", err)
	}
	path, err := storeFile(dir, now.Format(storedNameLayout)+"_"+filepath.Base(filename), raw)
	if err != nil {
		return domain.Registration{}, fmt.Errorf("storing %s: %w", filename, err)
	}

	reg := domain.Registration{
		HouseID:     houseID,
		StoragePath: path,
		ContentHash: hash,
		UploadedAt:  now,
	}
	id, err := r.registry.RegisterDocument(ctx, reg)
	if err != nil {
		_ = os.Remove(path)
		return domain.Registration{}, err
	}
	reg.ID = id

	r.mu.Lock()
	sc := r.houses[houseID]
	r.mu.Unlock()
	if sc != nil {
		if _, err := r.ingestStored(ctx, sc, path); err != nil {
			logger.Warn("house %d: indexing %s: %v", houseID, path, err)
		}
	}
	return reg, nil
}

// storeFile writes raw to a new file named name in dir. An existing file is
// never replaced; the name gets a "-N" suffix before the extension instead.
func storeFile(dir, name string, raw []byte) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = stem + "-" + strconv.Itoa(i) + ext
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(raw); err != nil {
			f.Close()
			_ = os.Remove(path)
			return "", err
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", err
		}
		return path, nil
	}
}

// houseIDs lists the houses an identity may query.
func (r *Resolver) houseIDs(ctx context.Context, id domain.Identity) ([]int64, error) {
	switch id.Role {
	case domain.RoleTenant:
		houseID := id.HouseID
		if houseID == 0 && id.UserID != 0 {
			u, err := r.registry.GetUser(ctx, id.UserID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			houseID = u.TenantHouseID
		}
		if houseID == 0 {
			return nil, nil
		}
		return []int64{houseID}, nil
	case domain.RoleLandlord:
		houses, err := r.registry.ListHouses(ctx, id.UserID)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, len(houses))
		for i, h := range houses {
			ids[i] = h.ID
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("unknown role %q: %w", id.Role, domain.ErrInvalidInput)
	}
}

// Resolve returns the scopes visible to an identity: the personal scope when
// it holds anything, then the tenant's house or every house of a landlord.
// House scopes are loaded on first use.
func (r *Resolver) Resolve(ctx context.Context, id domain.Identity) ([]*service.Scope, error) {
	ids, err := r.houseIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	var scopes []*service.Scope
	if p := r.Personal(); p != nil && !p.Empty() {
		scopes = append(scopes, p)
	}
	for _, hid := range ids {
		if _, err := r.LoadHouse(ctx, hid); err != nil {
			return nil, err
		}
		r.mu.Lock()
		sc := r.houses[hid]
		r.mu.Unlock()
		scopes = append(scopes, sc)
	}
	return scopes, nil
}

// HasAnyKB reports whether the identity can query at least one document.
func (r *Resolver) HasAnyKB(ctx context.Context, id domain.Identity) (bool, error) {
	if p := r.Personal(); p != nil && !p.Empty() {
		return true, nil
	}
	ids, err := r.houseIDs(ctx, id)
	if err != nil {
		return false, err
	}
	for _, hid := range ids {
		ok, err := r.registry.HasDocuments(ctx, hid)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Answer resolves the identity's scopes and answers question from them.
func (r *Resolver) Answer(ctx context.Context, id domain.Identity, question string, topK int) (string, error) {
	scopes, err := r.Resolve(ctx, id)
	if err != nil {
		return "", err
	}
	return r.svc.Answer(ctx, question, topK, scopes...)
}
