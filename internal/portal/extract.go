package portal

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lexwatch/tribsync/internal/domain"
)

// Column order observed on the portal's notification table. Defensive
// only: rows shorter than the description column are skipped.
const (
	colNumero = iota
	colExpediente
	colJuzgado
	colDate
	colCity
	colDescription
	colRelated
	minColumns = colDescription + 1
)

var dateLayouts = []string{
	"02/01/2006",
	"2006-01-02",
	"02-01-2006",
}

var digitsRe = regexp.MustCompile(`\d+`)

// extractDocuments parses the rendered document list into records.
// Malformed rows (missing expediente or unparseable numero) are
// silently excluded — a broken row is not a pipeline failure. The
// result is sorted ascending by numero; watermark computation relies
// on that ordering.
func extractDocuments(doc *goquery.Document) []domain.DocumentRecord {
	rows := rowMatch(doc, documentRowSelectors)
	if rows == nil {
		return nil
	}

	records := make([]domain.DocumentRecord, 0, rows.Length())
	rows.Each(func(_ int, row *goquery.Selection) {
		if rec, ok := parseRow(row); ok {
			records = append(records, rec)
		}
	})

	sort.Slice(records, func(i, j int) bool {
		return records[i].Numero < records[j].Numero
	})

	return records
}

func parseRow(row *goquery.Selection) (domain.DocumentRecord, bool) {
	cells := row.Find("td")
	if cells.Length() < minColumns {
		return domain.DocumentRecord{}, false
	}

	cellText := func(i int) string {
		return strings.TrimSpace(cells.Eq(i).Text())
	}

	expediente := cellText(colExpediente)
	if expediente == "" {
		return domain.DocumentRecord{}, false
	}

	numero, err := strconv.ParseInt(cellText(colNumero), 10, 64)
	if err != nil {
		return domain.DocumentRecord{}, false
	}

	rec := domain.DocumentRecord{
		Numero:          numero,
		Expediente:      expediente,
		Juzgado:         cellText(colJuzgado),
		PublicationDate: parseDate(cellText(colDate)),
		City:            cellText(colCity),
		Description:     cellText(colDescription),
		DownloadRef:     downloadRef(row),
	}

	if cells.Length() > colRelated {
		if n, convErr := strconv.Atoi(cellText(colRelated)); convErr == nil {
			rec.RelatedFilings = n
		}
	}

	return rec, true
}

func parseDate(raw string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// downloadRef pulls the inline handler reference the portal embeds on
// downloadable rows. Older markup carries it as a data attribute;
// newer markup buries it in an onclick handler.
func downloadRef(row *goquery.Selection) string {
	link := row.Find("a[data-proceso], a[data-ref], a[onclick]").First()
	if link.Length() == 0 {
		return ""
	}

	if ref := link.AttrOr("data-proceso", ""); ref != "" {
		return ref
	}
	if ref := link.AttrOr("data-ref", ""); ref != "" {
		return ref
	}
	return digitsRe.FindString(link.AttrOr("onclick", ""))
}
