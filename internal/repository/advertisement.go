package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/fileshare-catalog/internal/domain/model"
)

// UpsertResult — результат Upsert: идентификатор строки и признак вставки.
type UpsertResult struct {
	// ID — идентификатор объявления (новый или существующий)
	ID int64
	// Inserted — true, если строка создана; false — продлена существующая
	Inserted bool
}

// AdvertisementRepository — интерфейс доступа к объявлениям в file_entries.
type AdvertisementRepository interface {
	// Upsert создаёт объявление или продлевает существующее с тем же
	// (file_name, owner_ip, owner_port). Владелец существующей строки не меняется.
	Upsert(ctx context.Context, peerID, fileName string, owner model.OwnerAddress) (UpsertResult, error)
	// Search возвращает объявления, имя которых содержит подстроку (без учёта регистра).
	Search(ctx context.Context, query string) ([]model.FileRef, error)
	// GetByID возвращает объявление по идентификатору или ErrNotFound.
	GetByID(ctx context.Context, id int64) (*model.Advertisement, error)
	// DeleteOwned удаляет объявление с именем fileName, принадлежащее peerID.
	// Возвращает количество удалённых строк.
	DeleteOwned(ctx context.Context, fileName, peerID string) (int64, error)
	// DeleteByPeer удаляет все объявления пира. Возвращает количество удалённых строк.
	DeleteByPeer(ctx context.Context, peerID string) (int64, error)
	// TouchByPeer продлевает все объявления пира. Возвращает количество продлённых строк.
	TouchByPeer(ctx context.Context, peerID string) (int64, error)
	// DeleteOlderThan удаляет объявления, не продлевавшиеся дольше maxAge.
	DeleteOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
}

// advertisementRepo — реализация AdvertisementRepository через pgx.
type advertisementRepo struct {
	db DBTX
}

// NewAdvertisementRepository создаёт репозиторий объявлений.
func NewAdvertisementRepository(db DBTX) AdvertisementRepository {
	return &advertisementRepo{db: db}
}

// Upsert — INSERT ... ON CONFLICT DO UPDATE.
// GREATEST не даёт last_seen уменьшиться: CURRENT_TIMESTAMP — время начала
// транзакции и может быть меньше значения, записанного параллельной транзакцией.
// (xmax = 0) истинно только для только что вставленной строки.
func (r *advertisementRepo) Upsert(
	ctx context.Context,
	peerID, fileName string,
	owner model.OwnerAddress,
) (UpsertResult, error) {
	query := `
		INSERT INTO file_entries (peer_id, file_name, owner_ip, owner_port, last_seen)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (file_name, owner_ip, owner_port)
		DO UPDATE SET last_seen = GREATEST(file_entries.last_seen, CURRENT_TIMESTAMP)
		RETURNING id, (xmax = 0) AS inserted`

	var res UpsertResult
	err := r.db.QueryRow(ctx, query, peerID, fileName, owner.Host, owner.Port).Scan(&res.ID, &res.Inserted)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("ошибка upsert объявления: %w", err)
	}
	return res, nil
}

// Search — ILIKE по подстроке. Порядок результатов не определён.
func (r *advertisementRepo) Search(ctx context.Context, query string) ([]model.FileRef, error) {
	sql := `SELECT id, file_name FROM file_entries WHERE file_name ILIKE $1 ESCAPE '\'`

	rows, err := r.db.Query(ctx, sql, buildSearchPattern(query))
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска объявлений: %w", err)
	}
	defer rows.Close()

	result := make([]model.FileRef, 0)
	for rows.Next() {
		var ref model.FileRef
		if err := rows.Scan(&ref.ID, &ref.FileName); err != nil {
			return nil, fmt.Errorf("ошибка сканирования объявления: %w", err)
		}
		result = append(result, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}

	return result, nil
}

// GetByID возвращает объявление по идентификатору или ErrNotFound.
func (r *advertisementRepo) GetByID(ctx context.Context, id int64) (*model.Advertisement, error) {
	query := `
		SELECT id, file_name, peer_id, owner_ip, owner_port, last_seen
		FROM file_entries
		WHERE id = $1`

	ad := &model.Advertisement{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&ad.ID, &ad.FileName, &ad.PeerID, &ad.Owner.Host, &ad.Owner.Port, &ad.LastRenewed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения объявления: %w", err)
	}
	return ad, nil
}

// DeleteOwned удаляет объявление только при совпадении имени и владельца.
func (r *advertisementRepo) DeleteOwned(ctx context.Context, fileName, peerID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM file_entries WHERE file_name = $1 AND peer_id = $2`,
		fileName, peerID,
	)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления объявления: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteByPeer удаляет все объявления пира.
func (r *advertisementRepo) DeleteByPeer(ctx context.Context, peerID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM file_entries WHERE peer_id = $1`, peerID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления объявлений пира: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TouchByPeer продлевает все объявления пира одним UPDATE.
func (r *advertisementRepo) TouchByPeer(ctx context.Context, peerID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE file_entries
		SET last_seen = GREATEST(last_seen, CURRENT_TIMESTAMP)
		WHERE peer_id = $1`,
		peerID,
	)
	if err != nil {
		return 0, fmt.Errorf("ошибка продления объявлений пира: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOlderThan удаляет устаревшие объявления одним DELETE.
// Возраст сравнивается с last_seen, сохранённым на момент выполнения запроса.
func (r *advertisementRepo) DeleteOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("некорректный возраст устаревания: %s", maxAge)
	}

	tag, err := r.db.Exec(ctx,
		`DELETE FROM file_entries WHERE last_seen < NOW() - ($1::bigint * INTERVAL '1 millisecond')`,
		maxAge.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления устаревших объявлений: %w", err)
	}
	return tag.RowsAffected(), nil
}

// likeEscaper экранирует метасимволы LIKE, чтобы запрос искался буквально.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildSearchPattern строит шаблон ILIKE для поиска подстроки.
// Пустой запрос совпадает со всеми объявлениями.
func buildSearchPattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}
