package vendors

import "github.com/any-hub/cache-info/internal/blobfmt"

// 常见 Vulkan 实现的 vendorID，取自 PCI-SIG 与 Khronos 的 VkVendorId。
func init() {
	MustRegister(Vendor{ID: blobfmt.AMDVendorID, Name: "AMD", Parsable: true})
	MustRegister(Vendor{ID: 0x1010, Name: "ImgTec"})
	MustRegister(Vendor{ID: 0x106b, Name: "Apple"})
	MustRegister(Vendor{ID: 0x10de, Name: "NVIDIA"})
	MustRegister(Vendor{ID: 0x13b5, Name: "ARM"})
	MustRegister(Vendor{ID: 0x1414, Name: "Microsoft"})
	MustRegister(Vendor{ID: 0x5143, Name: "Qualcomm"})
	MustRegister(Vendor{ID: 0x8086, Name: "Intel"})
	MustRegister(Vendor{ID: 0x10005, Name: "Mesa"})
}
