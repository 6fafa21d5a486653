package enums

// ProductCategory groups catalog entries for browsing.
type ProductCategory string

const (
	ProductCategoryOverCounter    ProductCategory = "over_counter"
	ProductCategoryPrescription   ProductCategory = "prescription"
	ProductCategoryPersonalCare   ProductCategory = "personal_care"
	ProductCategoryVitamins       ProductCategory = "vitamins"
	ProductCategoryBabyCare       ProductCategory = "baby_care"
	ProductCategoryMedicalDevices ProductCategory = "medical_devices"
)

var validProductCategories = oneOf[ProductCategory]{
	ProductCategoryOverCounter,
	ProductCategoryPrescription,
	ProductCategoryPersonalCare,
	ProductCategoryVitamins,
	ProductCategoryBabyCare,
	ProductCategoryMedicalDevices,
}

// String implements fmt.Stringer.
func (c ProductCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ProductCategory.
func (c ProductCategory) IsValid() bool {
	return validProductCategories.has(c)
}

// ParseProductCategory converts raw input into a ProductCategory.
func ParseProductCategory(value string) (ProductCategory, error) {
	return validProductCategories.parse("product category", value)
}
