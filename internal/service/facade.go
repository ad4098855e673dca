// facade.go — набор операций каталога, доступный удалённым пирам.
// Прямая передача в CatalogService и LivenessService без собственной логики.
package service

import (
	"context"

	"github.com/bigkaa/fileshare-catalog/internal/domain/model"
)

// Facade — операции listFile, delistFile, searchFiles, getFileOwner,
// keepAlive, disconnect, getTTL.
type Facade struct {
	catalog  *CatalogService
	liveness *LivenessService
}

// NewFacade создаёт фасад каталога.
func NewFacade(catalog *CatalogService, liveness *LivenessService) *Facade {
	return &Facade{catalog: catalog, liveness: liveness}
}

// ListFile — публикация или продление объявления.
func (f *Facade) ListFile(ctx context.Context, peerID, fileName, ownerHost string, ownerPort int) {
	f.catalog.Advertise(ctx, peerID, fileName, model.OwnerAddress{Host: ownerHost, Port: ownerPort})
}

// DelistFile — снятие объявления владельцем.
func (f *Facade) DelistFile(ctx context.Context, fileName, peerID string) {
	f.catalog.Delist(ctx, fileName, peerID)
}

// SearchFiles — поиск по подстроке имени.
func (f *Facade) SearchFiles(ctx context.Context, query string) []model.FileRef {
	return f.catalog.Search(ctx, query)
}

// GetFileOwner — адрес владельца объявления.
func (f *Facade) GetFileOwner(ctx context.Context, id int64) (model.FileOwner, bool) {
	return f.catalog.Resolve(ctx, id)
}

// KeepAlive — heartbeat пира.
func (f *Facade) KeepAlive(ctx context.Context, peerID string) bool {
	return f.liveness.Heartbeat(ctx, peerID)
}

// Disconnect — удаление всех объявлений пира.
func (f *Facade) Disconnect(ctx context.Context, peerID string) {
	f.catalog.DeleteAllForPeer(ctx, peerID)
}

// GetTTL — порог устаревания в целых секундах.
func (f *Facade) GetTTL() int {
	return int(f.liveness.StalenessThreshold().Seconds())
}
