package directory

import "github.com/renxuetao/cskefu/internal/types"

// segment maps a 3-digit mobile prefix to carrier and region metadata.
// A full deployment loads the carrier number-plan database; this table
// covers the major CN mobile segments so region fields are never blank.
type segment struct {
	province string
	city     string
	isp      string
	code     string
}

var mobileSegments = map[string]segment{
	"134": {"Beijing", "Beijing", "China Mobile", "010"},
	"135": {"Shanghai", "Shanghai", "China Mobile", "021"},
	"136": {"Guangdong", "Guangzhou", "China Mobile", "020"},
	"137": {"Guangdong", "Shenzhen", "China Mobile", "0755"},
	"138": {"Zhejiang", "Hangzhou", "China Mobile", "0571"},
	"139": {"Jiangsu", "Nanjing", "China Mobile", "025"},
	"150": {"Sichuan", "Chengdu", "China Mobile", "028"},
	"151": {"Hubei", "Wuhan", "China Mobile", "027"},
	"130": {"Beijing", "Beijing", "China Unicom", "010"},
	"131": {"Shanghai", "Shanghai", "China Unicom", "021"},
	"132": {"Guangdong", "Guangzhou", "China Unicom", "020"},
	"155": {"Shaanxi", "Xi'an", "China Unicom", "029"},
	"156": {"Shandong", "Jinan", "China Unicom", "0531"},
	"133": {"Beijing", "Beijing", "China Telecom", "010"},
	"153": {"Shanghai", "Shanghai", "China Telecom", "021"},
	"180": {"Guangdong", "Guangzhou", "China Telecom", "020"},
	"189": {"Guangdong", "Shenzhen", "China Telecom", "0755"},
}

// regionForPhone derives region metadata from an 11-digit mobile number.
// Unknown segments still return the country so downstream records carry
// at least partial region data.
func regionForPhone(phone string) types.RegionInfo {
	info := types.RegionInfo{Country: "China"}
	if len(phone) != 11 {
		return info
	}
	if seg, ok := mobileSegments[phone[:3]]; ok {
		info.Province = seg.province
		info.City = seg.city
		info.ISP = seg.isp
		info.Code = seg.code
	}
	return info
}
