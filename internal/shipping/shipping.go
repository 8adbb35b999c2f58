// Package shipping prices delivery by region. The region is guessed from the
// free-form address by keyword matching on diacritic-free text.
package shipping

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Rate struct {
	Region                string `json:"region"`
	BaseFee               int64  `json:"baseFee"`
	FreeShippingThreshold int64  `json:"freeShippingThreshold"`
}

type Quote struct {
	Fee                   int64  `json:"fee"`
	Region                string `json:"region"`
	FreeShippingThreshold int64  `json:"freeShippingThreshold"`
	IsFreeShipping        bool   `json:"isFreeShipping"`
}

const RegionDefault = "default"

var rates = []Rate{
	{Region: "hcm", BaseFee: 0, FreeShippingThreshold: 0},
	{Region: "hanoi", BaseFee: 20000, FreeShippingThreshold: 500000},
	{Region: "mien_nam", BaseFee: 25000, FreeShippingThreshold: 500000},
	{Region: "mien_trung", BaseFee: 35000, FreeShippingThreshold: 800000},
	{Region: "mien_bac", BaseFee: 30000, FreeShippingThreshold: 500000},
	{Region: RegionDefault, BaseFee: 40000, FreeShippingThreshold: 1000000},
}

// Checked in this order; the first region with a matching keyword wins.
var regionKeywords = []struct {
	region   string
	keywords []string
}{
	{"hcm", []string{"hồ chí minh", "hcm", "sài gòn", "saigon", "tp.hcm", "tphcm", "quận 1", "quận 2", "quận 3", "quận 4", "quận 5", "quận 6", "quận 7", "quận 8", "quận 9", "quận 10", "quận 11", "quận 12", "bình thạnh", "gò vấp", "tân bình", "tân phú", "phú nhuận", "thủ đức", "bình tân", "củ chi", "hóc môn", "nhà bè", "cần giờ"}},
	{"hanoi", []string{"hà nội", "hanoi", "ha noi", "hoàn kiếm", "ba đình", "đống đa", "hai bà trưng", "hoàng mai", "thanh xuân", "cầu giấy", "long biên", "tây hồ", "nam từ liêm", "bắc từ liêm", "hà đông"}},
	{"mien_nam", []string{"bình dương", "đồng nai", "long an", "tây ninh", "bà rịa", "vũng tàu", "bình phước", "cần thơ", "an giang", "kiên giang", "cà mau", "bạc liêu", "sóc trăng", "trà vinh", "vĩnh long", "đồng tháp", "tiền giang", "bến tre", "hậu giang"}},
	{"mien_trung", []string{"đà nẵng", "huế", "quảng nam", "quảng ngãi", "bình định", "phú yên", "khánh hòa", "nha trang", "ninh thuận", "bình thuận", "quảng bình", "quảng trị", "hà tĩnh", "nghệ an", "thanh hóa", "kon tum", "gia lai", "đắk lắk", "đắk nông", "lâm đồng", "đà lạt"}},
	{"mien_bac", []string{"hải phòng", "quảng ninh", "hải dương", "hưng yên", "thái bình", "nam định", "ninh bình", "bắc ninh", "bắc giang", "vĩnh phúc", "phú thọ", "thái nguyên", "lạng sơn", "cao bằng", "bắc kạn", "tuyên quang", "hà giang", "lào cai", "yên bái", "điện biên", "lai châu", "sơn la", "hòa bình"}},
}

var foldedKeywords = func() map[string][]string {
	out := make(map[string][]string, len(regionKeywords))
	for _, rk := range regionKeywords {
		for _, k := range rk.keywords {
			out[rk.region] = append(out[rk.region], fold(k))
		}
	}
	return out
}()

// fold lower-cases s and strips combining marks; đ has no decomposition so it is mapped by hand.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.ReplaceAll(out, "đ", "d")
}

func DetectRegion(address string) string {
	a := fold(address)
	for _, rk := range regionKeywords {
		for _, k := range foldedKeywords[rk.region] {
			if strings.Contains(a, k) {
				return rk.region
			}
		}
	}
	return RegionDefault
}

func rateFor(region string) Rate {
	for _, r := range rates {
		if r.Region == region {
			return r
		}
	}
	return rates[len(rates)-1]
}

// Calculate quotes the fee for subtotal delivered to address. Shipping is free
// once subtotal reaches the region threshold.
func Calculate(address string, subtotal int64) Quote {
	region := DetectRegion(address)
	r := rateFor(region)
	free := subtotal >= r.FreeShippingThreshold
	fee := r.BaseFee
	if free {
		fee = 0
	}
	return Quote{Fee: fee, Region: region, FreeShippingThreshold: r.FreeShippingThreshold, IsFreeShipping: free}
}

// Rates lists the named regions, without the fallback.
func Rates() []Rate {
	out := make([]Rate, 0, len(rates)-1)
	for _, r := range rates {
		if r.Region != RegionDefault {
			out = append(out, r)
		}
	}
	return out
}
